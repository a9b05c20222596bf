package storage

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

var testBucket = domain.SequenceBucket{YY: "99", MM: "12"}

func getMySQLDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory_test"
	}
	dsn, err := NormalizeDSN(dsn)
	require.NoError(t, err)

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	require.NoError(t, Migrate(db.DB, MigrateUp))
	resetTables(t, db)
	t.Cleanup(func() {
		resetTables(t, db)
		db.Close()
	})
	return db
}

func resetTables(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DELETE FROM stock_ledger`,
		`DELETE FROM price_ledger`,
		`DELETE FROM items`,
		`DELETE FROM item_counters WHERE yy = '99'`,
		`DELETE FROM users`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func newTestItem(name string, code string) domain.Item {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Item{
		ID:        uuid.New(),
		Name:      name,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func insertItem(t *testing.T, repo port.DatabaseRepository, item domain.Item) {
	t.Helper()
	require.NoError(t, repo.WithinTx(context.Background(), func(tx port.Tx) error {
		return tx.InsertItem(context.Background(), item)
	}))
}

func TestMySQL_NextSequenceConcurrent(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	// Seed the row so every caller takes the row-lock path.
	_, err := db.Exec(`INSERT INTO item_counters (yy, mm, counter) VALUES (?, ?, 0)`, testBucket.YY, testBucket.MM)
	require.NoError(t, err)

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.WithinTx(ctx, func(tx port.Tx) error {
				seq, err := tx.NextSequence(ctx, testBucket)
				if err != nil {
					return err
				}
				mu.Lock()
				seqs = append(seqs, seq)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	require.Len(t, seqs, workers)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestMySQL_NextSequenceStartsAtOne(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	var first, second int64
	require.NoError(t, adapter.WithinTx(ctx, func(tx port.Tx) error {
		var err error
		if first, err = tx.NextSequence(ctx, testBucket); err != nil {
			return err
		}
		second, err = tx.NextSequence(ctx, testBucket)
		return err
	}))
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestMySQL_RollbackDiscardsWrites(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	item := newTestItem("Rollback", "TST/99/12/00001")
	err := adapter.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.NextSequence(ctx, testBucket); err != nil {
			return err
		}
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		return domain.InvalidArgument("abort")
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = adapter.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM item_counters WHERE yy = ? AND mm = ?`, testBucket.YY, testBucket.MM))
	assert.Zero(t, count)
}

func TestMySQL_StockLedgerAndReport(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	widget := newTestItem("Widget", "TST/99/12/00001")
	empty := newTestItem("Anvil", "TST/99/12/00002")
	insertItem(t, adapter, widget)
	insertItem(t, adapter, empty)

	var total int64
	for _, e := range []struct {
		delta int64
		date  string
	}{{10, "2025-01-01"}, {-3, "2025-01-05"}} {
		require.NoError(t, adapter.WithinTx(ctx, func(tx port.Tx) error {
			if _, err := tx.LockItem(ctx, widget.ID); err != nil {
				return err
			}
			if err := tx.AppendStockEntry(ctx, domain.StockEntry{
				ItemID:    widget.ID,
				Delta:     e.delta,
				TxnDate:   mustDate(t, e.date),
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
			var err error
			total, err = tx.IncrementStock(ctx, widget.ID, e.delta)
			return err
		}))
	}
	assert.Equal(t, int64(7), total)

	rows, err := adapter.StockAsOf(ctx, mustDate(t, "2025-01-04"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Anvil", rows[0].ItemName)
	assert.Equal(t, int64(0), rows[0].TotalStock)
	assert.Equal(t, int64(10), rows[1].TotalStock)

	rows, err = adapter.StockAsOf(ctx, mustDate(t, "2025-01-05"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows[1].TotalStock)

	entries, err := adapter.StockEntries(ctx, widget.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-01-01", entries[0].TxnDate.String())

	stored, err := adapter.GetItem(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Stock)
}

func TestMySQL_PriceAsOf(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	item := newTestItem("Priced", "TST/99/12/00001")
	unpriced := newTestItem("Unpriced", "TST/99/12/00002")
	insertItem(t, adapter, item)
	insertItem(t, adapter, unpriced)

	base := time.Now().UTC()
	for i, p := range []struct {
		price string
		date  string
	}{{"100.00", "2025-01-01"}, {"120.00", "2025-01-10"}, {"90.00", "2025-01-02"}, {"95.50", "2025-01-02"}} {
		price := decimal.RequireFromString(p.price)
		require.NoError(t, adapter.WithinTx(ctx, func(tx port.Tx) error {
			if err := tx.AppendPriceEntry(ctx, domain.PriceEntry{
				ItemID:        item.ID,
				Price:         price,
				EffectiveDate: mustDate(t, p.date),
				CreatedAt:     base.Add(time.Duration(i) * time.Second),
			}); err != nil {
				return err
			}
			return tx.SetCurrentPrice(ctx, item.ID, price)
		}))
	}

	tests := []struct {
		date string
		want string
	}{
		{"2024-12-31", ""},
		{"2025-01-01", "100.00"},
		{"2025-01-05", "95.50"},
		{"2025-01-10", "120.00"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			rows, err := adapter.PriceAsOf(ctx, mustDate(t, tt.date))
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "Priced", rows[0].ItemName)
			assert.False(t, rows[1].Price.Valid)
			if tt.want == "" {
				assert.False(t, rows[0].Price.Valid)
				return
			}
			require.True(t, rows[0].Price.Valid)
			assert.Equal(t, tt.want, domain.FormatPrice(rows[0].Price.Decimal))
		})
	}

	stored, err := adapter.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "95.50", domain.FormatPrice(stored.Price.Decimal))
}

func TestMySQL_DeleteCascades(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	item := newTestItem("Doomed", "TST/99/12/00001")
	insertItem(t, adapter, item)
	require.NoError(t, adapter.WithinTx(ctx, func(tx port.Tx) error {
		if err := tx.AppendStockEntry(ctx, domain.StockEntry{ItemID: item.ID, Delta: 5, TxnDate: mustDate(t, "2025-01-01"), CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return tx.AppendPriceEntry(ctx, domain.PriceEntry{ItemID: item.ID, Price: decimal.NewFromInt(1), EffectiveDate: mustDate(t, "2025-01-01"), CreatedAt: time.Now().UTC()})
	}))

	require.NoError(t, adapter.WithinTx(ctx, func(tx port.Tx) error {
		return tx.DeleteItem(ctx, item.ID)
	}))

	var stockRows, priceRows int
	require.NoError(t, db.Get(&stockRows, `SELECT COUNT(*) FROM stock_ledger WHERE item_id = ?`, item.ID))
	require.NoError(t, db.Get(&priceRows, `SELECT COUNT(*) FROM price_ledger WHERE item_id = ?`, item.ID))
	assert.Zero(t, stockRows)
	assert.Zero(t, priceRows)

	err := adapter.WithinTx(ctx, func(tx port.Tx) error {
		return tx.DeleteItem(ctx, item.ID)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_LockItemNotFound(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	err := adapter.WithinTx(ctx, func(tx port.Tx) error {
		_, err := tx.LockItem(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_Users(t *testing.T) {
	db := getMySQLDB(t)
	adapter := NewMySQLAdapter(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := domain.User{ID: uuid.New(), Username: "mysql-user", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, adapter.CreateUser(ctx, user))

	dup := user
	dup.ID = uuid.New()
	assert.ErrorIs(t, adapter.CreateUser(ctx, dup), domain.ErrConflict)

	found, err := adapter.FindUserByUsername(ctx, "mysql-user")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found.Username = "renamed"
	require.NoError(t, adapter.UpdateUser(ctx, *found))

	byID, err := adapter.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", byID.Username)

	require.NoError(t, adapter.DeleteUser(ctx, user.ID))
	_, err = adapter.FindUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStorageError(t *testing.T) {
	classified := domain.NotFound("item not found")
	assert.Same(t, classified, storageError(classified, "op"))

	err := storageError(assert.AnError, "query item")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, "storage temporarily unavailable", domain.PublicMessage(err))

	tests := []struct {
		name   string
		number uint16
		kind   error
	}{
		{"out of range column", mysqlErrOutOfRange, domain.ErrInvalidArgument},
		{"data too long", mysqlErrDataTooLong, domain.ErrInvalidArgument},
		{"bigint overflow", mysqlErrValueOutOfRange, domain.ErrInvalidArgument},
		{"lock wait timeout", 1205, domain.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageError(errors.Wrap(&mysql.MySQLError{Number: tt.number}, "exec"), "increment stock")
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}
