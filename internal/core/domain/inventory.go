package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxItemNameLength = 255
	MaxNoteLength     = 512
	MaxPhotoRefLength = 512
	PriceScale        = 2
)

var (
	// PriceLimit is the exclusive upper bound of a price: 16 integer digits.
	PriceLimit = decimal.New(1, 16)

	minWhole = decimal.NewFromInt(math.MinInt64)
	maxWhole = decimal.NewFromInt(math.MaxInt64)
)

// Item is the inventory aggregate. Stock and Price are caches of the ledgers folded up to now.
type Item struct {
	ID        uuid.UUID           `db:"id"`
	Name      string              `db:"name"`
	Code      string              `db:"code"`
	Stock     int64               `db:"stock"`
	Price     decimal.NullDecimal `db:"price"`
	PhotoRef  *string             `db:"photo_ref"`
	CreatedAt time.Time           `db:"created_at"`
	UpdatedAt time.Time           `db:"updated_at"`
}

// CreateItemInput carries raw caller values; Stock and Price stay strings until validated.
type CreateItemInput struct {
	Name     string
	Stock    *string
	Price    *string
	PhotoRef *string
}

// ItemPatch lists the fields an update wants to change. Nil means unchanged.
type ItemPatch struct {
	Name     *string
	PhotoRef *string
}

func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.PhotoRef == nil
}

func (p ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.PhotoRef != nil {
		if *p.PhotoRef == "" {
			item.PhotoRef = nil
		} else {
			ref := *p.PhotoRef
			item.PhotoRef = &ref
		}
	}
}

func ValidateItemName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return InvalidArgument("name is required")
	}
	if len(name) > MaxItemNameLength {
		return InvalidArgument("name must be at most %d characters", MaxItemNameLength)
	}
	return nil
}

// ValidateNote bounds an optional free-text ledger note.
func ValidateNote(note *string) error {
	if note != nil && utf8.RuneCountInString(*note) > MaxNoteLength {
		return InvalidArgument("note must be at most %d characters", MaxNoteLength)
	}
	return nil
}

func ValidatePhotoRef(ref *string) error {
	if ref != nil && utf8.RuneCountInString(*ref) > MaxPhotoRefLength {
		return InvalidArgument("photoRef must be at most %d characters", MaxPhotoRefLength)
	}
	return nil
}

// ParseWholeNumber parses a signed 64-bit integer. Decimal notation such as "3.0" is
// accepted only when the fraction is zero.
func ParseWholeNumber(s, field string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, InvalidArgument("%s must be an integer", field)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, InvalidArgument("%s must be an integer", field)
	}
	if d.LessThan(minWhole) || d.GreaterThan(maxWhole) {
		return 0, InvalidArgument("%s is out of range", field)
	}
	return d.IntPart(), nil
}

// AddStock moves a stock total by delta, refusing results that do not fit in 64 bits.
func AddStock(stock, delta int64) (int64, error) {
	if (delta > 0 && stock > math.MaxInt64-delta) || (delta < 0 && stock < math.MinInt64-delta) {
		return 0, InvalidArgument("stock total out of range")
	}
	return stock + delta, nil
}

// ParsePrice parses a non-negative decimal below PriceLimit with at most PriceScale
// fractional digits.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, InvalidArgument("price is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, InvalidArgument("price must be a numeric string")
	}
	if d.IsNegative() {
		return decimal.Decimal{}, InvalidArgument("price must not be negative")
	}
	if !d.Equal(d.Truncate(PriceScale)) {
		return decimal.Decimal{}, InvalidArgument("price must have at most %d decimal places", PriceScale)
	}
	if d.GreaterThanOrEqual(PriceLimit) {
		return decimal.Decimal{}, InvalidArgument("price must be less than %s", PriceLimit.String())
	}
	return d, nil
}

// FormatPrice renders a price with exactly PriceScale fractional digits.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PriceScale)
}

// FormatNullPrice returns nil for an absent price.
func FormatNullPrice(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := FormatPrice(d.Decimal)
	return &s
}
