package storage

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const (
	userColumns = `id, username, password_hash, created_at, updated_at`

	mysqlErrDuplicateEntry  = 1062
	mysqlErrOutOfRange      = 1264
	mysqlErrDataTooLong     = 1406
	mysqlErrValueOutOfRange = 1690
)

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES (:id, :username, :password_hash, :created_at, :updated_at)`,
		user,
	)
	if isDuplicateEntry(err) {
		return domain.Conflict("username already taken")
	}
	if err != nil {
		return storageError(err, "insert user")
	}
	return nil
}

func (m *MySQLAdapter) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (m *MySQLAdapter) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (m *MySQLAdapter) findUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := m.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, storageError(err, "query user")
	}
	return &user, nil
}

func (m *MySQLAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := m.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storageError(err, "list users")
	}
	return users, nil
}

func (m *MySQLAdapter) UpdateUser(ctx context.Context, user domain.User) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`,
		user.Username, user.PasswordHash, user.UpdatedAt, user.ID,
	)
	if isDuplicateEntry(err) {
		return domain.Conflict("username already taken")
	}
	if err != nil {
		return storageError(err, "update user")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("user not found")
	}
	return nil
}

func (m *MySQLAdapter) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return storageError(err, "delete user")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("user not found")
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
