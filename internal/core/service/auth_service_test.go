package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const testSecret = "test-secret"

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	mem := storage.NewMemoryAdapter()
	users := NewUserService(mem, zap.NewNop(), bcrypt.MinCost)
	return NewAuthService(mem, users, testSecret, time.Hour, zap.NewNop())
}

func TestLogin(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "frank", "secret1")
	require.NoError(t, err)

	token, err := svc.Login(ctx, "frank", "secret1")
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "frank", claims.Username)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "grace", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "grace", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, "invalid credentials", domain.PublicMessage(err))
}

func TestVerifyToken_Rejects(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "heidi", "secret1")
	require.NoError(t, err)
	token, err := svc.Login(ctx, "heidi", "secret1")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := *svc
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.VerifyToken(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := *svc
		other.secret = []byte("other-secret")
		_, err := other.VerifyToken(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.VerifyToken(forged)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.VerifyToken("not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
