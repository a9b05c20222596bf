package storage

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const itemColumns = `id, name, code, stock, price, photo_ref, created_at, updated_at`

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageError(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageError(err, "commit tx")
	}
	return nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var item domain.Item
	err := m.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("item not found")
	}
	if err != nil {
		return nil, storageError(err, "query item")
	}
	return &item, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	items := []domain.Item{}
	err := m.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM items
		ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, storageError(err, "list items")
	}
	return items, nil
}

func (m *MySQLAdapter) StockAsOf(ctx context.Context, date domain.Date) ([]domain.StockBalance, error) {
	rows := []domain.StockBalance{}
	err := m.db.SelectContext(ctx, &rows, `
		SELECT i.id, i.name, CAST(COALESCE(SUM(s.delta), 0) AS SIGNED) AS total_stock
		FROM items i
		LEFT JOIN stock_ledger s
			ON s.item_id = i.id
		   AND s.txn_date <= ?
		GROUP BY i.id, i.name
		ORDER BY i.name ASC, i.id ASC`, date)
	if err != nil {
		return nil, storageError(err, "query stock report")
	}
	return rows, nil
}

func (m *MySQLAdapter) PriceAsOf(ctx context.Context, date domain.Date) ([]domain.PriceQuote, error) {
	rows := []domain.PriceQuote{}
	err := m.db.SelectContext(ctx, &rows, `
		SELECT i.id, i.name, (
			SELECT p.price
			FROM price_ledger p
			WHERE p.item_id = i.id
			  AND p.effective_date <= ?
			ORDER BY p.effective_date DESC, p.created_at DESC, p.id DESC
			LIMIT 1
		) AS price
		FROM items i
		ORDER BY i.name ASC, i.id ASC`, date)
	if err != nil {
		return nil, storageError(err, "query price report")
	}
	return rows, nil
}

func (m *MySQLAdapter) StockEntries(ctx context.Context, itemID uuid.UUID) ([]domain.StockEntry, error) {
	entries := []domain.StockEntry{}
	err := m.db.SelectContext(ctx, &entries, `
		SELECT id, item_id, delta, note, txn_date, created_at
		FROM stock_ledger
		WHERE item_id = ?
		ORDER BY txn_date ASC, created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, storageError(err, "query stock ledger")
	}
	return entries, nil
}

func (m *MySQLAdapter) PriceEntries(ctx context.Context, itemID uuid.UUID) ([]domain.PriceEntry, error) {
	entries := []domain.PriceEntry{}
	err := m.db.SelectContext(ctx, &entries, `
		SELECT id, item_id, price, effective_date, created_at
		FROM price_ledger
		WHERE item_id = ?
		ORDER BY effective_date ASC, created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, storageError(err, "query price ledger")
	}
	return entries, nil
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) NextSequence(ctx context.Context, bucket domain.SequenceBucket) (int64, error) {
	// LAST_INSERT_ID(expr) pins the post-increment value to this connection while
	// the row lock on the bucket serializes concurrent callers.
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO item_counters (yy, mm, counter) VALUES (?, ?, LAST_INSERT_ID(1))
		ON DUPLICATE KEY UPDATE counter = LAST_INSERT_ID(counter + 1)`,
		bucket.YY, bucket.MM,
	)
	if err != nil {
		return 0, storageError(err, "upsert item counter")
	}

	var seq int64
	if err := t.tx.GetContext(ctx, &seq, `SELECT LAST_INSERT_ID()`); err != nil {
		return 0, storageError(err, "read item counter")
	}
	return seq, nil
}

func (t *mysqlTx) InsertItem(ctx context.Context, item domain.Item) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO items (id, name, code, stock, price, photo_ref, created_at, updated_at)
		VALUES (:id, :name, :code, :stock, :price, :photo_ref, :created_at, :updated_at)`,
		item,
	)
	if err != nil {
		return storageError(err, "insert item")
	}
	return nil
}

func (t *mysqlTx) LockItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var item domain.Item
	err := t.tx.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("item not found")
	}
	if err != nil {
		return nil, storageError(err, "lock item")
	}
	return &item, nil
}

func (t *mysqlTx) UpdateItemDetails(ctx context.Context, item domain.Item) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE items
		SET name = ?, photo_ref = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.PhotoRef, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return storageError(err, "update item")
	}
	return nil
}

func (t *mysqlTx) DeleteItem(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return storageError(err, "delete item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NotFound("item not found")
	}
	return nil
}

func (t *mysqlTx) AppendStockEntry(ctx context.Context, entry domain.StockEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_ledger (item_id, delta, note, txn_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ItemID, entry.Delta, entry.Note, entry.TxnDate, entry.CreatedAt,
	)
	if err != nil {
		return storageError(err, "insert stock entry")
	}
	return nil
}

func (t *mysqlTx) IncrementStock(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE items
		SET stock = stock + ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return 0, storageError(err, "increment stock")
	}

	var stock int64
	err = t.tx.GetContext(ctx, &stock, `SELECT stock FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound("item not found")
	}
	if err != nil {
		return 0, storageError(err, "read stock")
	}
	return stock, nil
}

func (t *mysqlTx) AppendPriceEntry(ctx context.Context, entry domain.PriceEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO price_ledger (item_id, price, effective_date, created_at)
		VALUES (?, ?, ?, ?)`,
		entry.ItemID, entry.Price, entry.EffectiveDate, entry.CreatedAt,
	)
	if err != nil {
		return storageError(err, "insert price entry")
	}
	return nil
}

func (t *mysqlTx) SetCurrentPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE items
		SET price = ?, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ?`,
		price, id,
	)
	if err != nil {
		return storageError(err, "set current price")
	}
	return nil
}

// storageError passes classified errors through and marks everything else as a
// transient storage failure. Values the schema cannot hold are the caller's fault.
func storageError(err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrOutOfRange, mysqlErrValueOutOfRange:
			return domain.InvalidArgument("value out of range")
		case mysqlErrDataTooLong:
			return domain.InvalidArgument("value too long")
		}
	}
	return domain.Unavailable(errors.Wrap(err, op))
}
