package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

type DatabaseRepository interface {
	// WithinTx runs fn in one storage transaction. Any error from fn rolls back
	// every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetItem returns domain.ErrNotFound when the item does not exist
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// ListItems returns items newest first
	ListItems(ctx context.Context) ([]domain.Item, error)

	// StockAsOf sums every item's stock ledger up to and including date, ordered by item name
	StockAsOf(ctx context.Context, date domain.Date) ([]domain.StockBalance, error)

	// PriceAsOf resolves every item's effective price on date, ordered by item name
	PriceAsOf(ctx context.Context, date domain.Date) ([]domain.PriceQuote, error)

	// StockEntries lists an item's stock ledger by effective date
	StockEntries(ctx context.Context, itemID uuid.UUID) ([]domain.StockEntry, error)

	// PriceEntries lists an item's price ledger by effective date
	PriceEntries(ctx context.Context, itemID uuid.UUID) ([]domain.PriceEntry, error)
}

// Tx is the write side of a single transaction.
type Tx interface {
	// NextSequence atomically creates or increments the bucket counter and returns the new value
	NextSequence(ctx context.Context, bucket domain.SequenceBucket) (int64, error)

	InsertItem(ctx context.Context, item domain.Item) error

	// LockItem loads the item and holds it against concurrent writers until the transaction ends.
	// Returns domain.ErrNotFound when absent.
	LockItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// UpdateItemDetails writes name, photo reference and updated_at
	UpdateItemDetails(ctx context.Context, item domain.Item) error

	// DeleteItem removes the item together with its ledger entries
	DeleteItem(ctx context.Context, id uuid.UUID) error

	AppendStockEntry(ctx context.Context, entry domain.StockEntry) error

	// IncrementStock adds delta to the denormalized stock and returns the new value
	IncrementStock(ctx context.Context, id uuid.UUID, delta int64) (int64, error)

	AppendPriceEntry(ctx context.Context, entry domain.PriceEntry) error

	SetCurrentPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
}

type UserRepository interface {
	// CreateUser returns domain.ErrConflict when the username is taken
	CreateUser(ctx context.Context, user domain.User) error

	// FindUserByID returns domain.ErrNotFound when absent
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// FindUserByUsername returns domain.ErrNotFound when absent
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// ListUsers returns users oldest first
	ListUsers(ctx context.Context) ([]domain.User, error)

	// UpdateUser returns domain.ErrConflict when the new username is taken
	UpdateUser(ctx context.Context, user domain.User) error

	DeleteUser(ctx context.Context, id uuid.UUID) error
}
