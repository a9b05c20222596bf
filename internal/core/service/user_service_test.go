package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	return NewUserService(storage.NewMemoryAdapter(), zap.NewNop(), bcrypt.MinCost)
}

func TestCreateUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, " alice ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))

	_, err = svc.CreateUser(ctx, "ALICE", "another1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateUser_Validation(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "short username", username: "ab", password: "secret1"},
		{name: "long username", username: strings.Repeat("u", 65), password: "secret1"},
		{name: "short password", username: "bob", password: "12345"},
		{name: "password over bcrypt limit", username: "bob", password: strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUpdateUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "carol", "secret1")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "dave", "secret1")
	require.NoError(t, err)

	newName := "caroline"
	newPassword := "changed1"
	updated, err := svc.UpdateUser(ctx, user.ID, domain.UserPatch{Username: &newName, Password: &newPassword})
	require.NoError(t, err)
	assert.Equal(t, "caroline", updated.Username)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte(newPassword)))

	taken := "dave"
	_, err = svc.UpdateUser(ctx, user.ID, domain.UserPatch{Username: &taken})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.UpdateUser(ctx, uuid.New(), domain.UserPatch{Username: &newName})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := svc.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "caroline", stored.Username)
}

func TestDeleteUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "erin", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, user.ID))

	_, err = svc.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.DeleteUser(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
