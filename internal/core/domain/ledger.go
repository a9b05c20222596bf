package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const InitialStockNote = "Initial stock"

// StockEntry is an immutable signed stock movement. Corrections are new entries.
type StockEntry struct {
	ID        int64     `db:"id"`
	ItemID    uuid.UUID `db:"item_id"`
	Delta     int64     `db:"delta"`
	Note      *string   `db:"note"`
	TxnDate   Date      `db:"txn_date"`
	CreatedAt time.Time `db:"created_at"`
}

// PriceEntry is an immutable price record effective from EffectiveDate.
type PriceEntry struct {
	ID            int64           `db:"id"`
	ItemID        uuid.UUID       `db:"item_id"`
	Price         decimal.Decimal `db:"price"`
	EffectiveDate Date            `db:"effective_date"`
	CreatedAt     time.Time       `db:"created_at"`
}

// StockAdjustment is a validated request to append a stock movement.
// A nil TxnDate means today.
type StockAdjustment struct {
	Delta   int64
	Note    *string
	TxnDate *Date
}

type StockTotal struct {
	ItemID     uuid.UUID
	TotalStock int64
}

type PriceChange struct {
	ItemID        uuid.UUID
	Price         decimal.Decimal
	EffectiveDate Date
}

// StockBalance is one row of a stock-as-of report.
type StockBalance struct {
	ItemID     uuid.UUID `db:"id"`
	ItemName   string    `db:"name"`
	TotalStock int64     `db:"total_stock"`
}

// PriceQuote is one row of a price-as-of report. Price is invalid when no entry
// was effective on the report date.
type PriceQuote struct {
	ItemID   uuid.UUID           `db:"id"`
	ItemName string              `db:"name"`
	Price    decimal.NullDecimal `db:"price"`
}

// LatestPriceAsOf picks the entry with the latest effective date on or before date.
// Ties go to the entry recorded last.
func LatestPriceAsOf(entries []PriceEntry, date Date) (PriceEntry, bool) {
	var (
		best  PriceEntry
		found bool
	)
	for _, e := range entries {
		if e.EffectiveDate.After(date) {
			continue
		}
		if !found || recordedAfter(e, best) {
			best, found = e, true
		}
	}
	return best, found
}

func recordedAfter(a, b PriceEntry) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SumStockAsOf folds the deltas effective on or before date.
func SumStockAsOf(entries []StockEntry, date Date) int64 {
	var total int64
	for _, e := range entries {
		if !e.TxnDate.After(date) {
			total += e.Delta
		}
	}
	return total
}
