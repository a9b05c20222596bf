package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const DefaultBcryptCost = 12

type UserService struct {
	users      port.UserRepository
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

func NewUserService(users port.UserRepository, logger *zap.Logger, bcryptCost int) *UserService {
	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	return &UserService{
		users:      users,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func (s *UserService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created", zap.String("user_id", user.ID.String()), zap.String("username", username))
	return &user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.FindUserByID(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, patch domain.UserPatch) (*domain.User, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if err := domain.ValidateUsername(username); err != nil {
			return nil, err
		}
		user.Username = username
	}
	if patch.Password != nil {
		if err := domain.ValidatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := s.hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, *user); err != nil {
		return nil, err
	}

	s.logger.Info("User updated", zap.String("user_id", id.String()))
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		// Only passwords over bcrypt's 72-byte limit fail here.
		return "", domain.InvalidArgument("password must be at most 72 bytes")
	}
	return string(hash), nil
}
