package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
	MinPasswordLength = 6
)

type User struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// UserPatch lists the fields an update wants to change. Nil means unchanged.
type UserPatch struct {
	Username *string
	Password *string
}

func ValidateUsername(username string) error {
	n := len(strings.TrimSpace(username))
	if n < MinUsernameLength || n > MaxUsernameLength {
		return InvalidArgument("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return InvalidArgument("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
