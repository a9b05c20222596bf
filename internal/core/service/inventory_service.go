package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	DefaultCodePrefix = "BRG"

	stockReportKind = "stock"
	priceReportKind = "price"
)

type InventoryService struct {
	db         port.DatabaseRepository
	cache      port.CacheRepository
	publisher  port.EventPublisher
	logger     *zap.Logger
	codePrefix string
	now        func() time.Time

	// Failed report invalidations, and how many of them a later successful bump covered.
	// While they differ the cache may hold reports from before a committed write.
	invalidationFailures atomic.Int64
	invalidationsCovered atomic.Int64
}

type Option func(*InventoryService)

// WithClock replaces time.Now, which drives item codes, "today" and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *InventoryService) { s.now = now }
}

func NewInventoryService(
	db port.DatabaseRepository,
	cache port.CacheRepository,
	publisher port.EventPublisher,
	logger *zap.Logger,
	codePrefix string,
	opts ...Option,
) *InventoryService {
	if codePrefix == "" {
		codePrefix = DefaultCodePrefix
	}
	s := &InventoryService{
		db:         db,
		cache:      cache,
		publisher:  publisher,
		logger:     logger,
		codePrefix: codePrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current UTC date, the default effective date of ledger entries.
func (s *InventoryService) Today() domain.Date {
	return domain.DateOf(s.now())
}

// CreateItem assigns the next item code and writes the item with its opening ledger
// entries in one transaction.
func (s *InventoryService) CreateItem(ctx context.Context, in domain.CreateItemInput) (*domain.Item, error) {
	if err := domain.ValidateItemName(in.Name); err != nil {
		return nil, err
	}
	photoRef := nonEmpty(in.PhotoRef)
	if err := domain.ValidatePhotoRef(photoRef); err != nil {
		return nil, err
	}

	var stock int64
	if in.Stock != nil && strings.TrimSpace(*in.Stock) != "" {
		n, err := domain.ParseWholeNumber(*in.Stock, "stock")
		if err != nil {
			return nil, err
		}
		stock = n
	}

	var price decimal.NullDecimal
	if in.Price != nil && strings.TrimSpace(*in.Price) != "" {
		p, err := domain.ParsePrice(*in.Price)
		if err != nil {
			return nil, err
		}
		price = decimal.NewNullDecimal(p)
	}

	now := s.now().UTC()
	today := domain.DateOf(now)
	bucket := domain.BucketFor(now)
	item := domain.Item{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Stock:     stock,
		Price:     price,
		PhotoRef:  photoRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		seq, err := tx.NextSequence(ctx, bucket)
		if err != nil {
			return err
		}
		item.Code = domain.FormatItemCode(s.codePrefix, bucket, seq)

		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}

		if stock != 0 {
			note := domain.InitialStockNote
			if err := tx.AppendStockEntry(ctx, domain.StockEntry{
				ItemID:    item.ID,
				Delta:     stock,
				Note:      &note,
				TxnDate:   today,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		if price.Valid {
			if err := tx.AppendPriceEntry(ctx, domain.PriceEntry{
				ItemID:        item.ID,
				Price:         price.Decimal,
				EffectiveDate: today,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure("create item", err, zap.String("name", item.Name))
		return nil, err
	}

	s.logger.Info("Item created",
		zap.String("item_id", item.ID.String()),
		zap.String("code", item.Code),
		zap.Int64("initial_stock", stock))

	s.afterWrite(ctx, domain.ItemCreated{
		ItemID:       item.ID,
		Code:         item.Code,
		Name:         item.Name,
		InitialStock: stock,
		InitialPrice: domain.FormatNullPrice(price),
	})
	return &item, nil
}

func (s *InventoryService) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	item, err := s.db.GetItem(ctx, id)
	if err != nil {
		s.logFailure("get item", err, zap.String("item_id", id.String()))
		return nil, err
	}
	return item, nil
}

func (s *InventoryService) ListItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.db.ListItems(ctx)
	if err != nil {
		s.logFailure("list items", err)
		return nil, err
	}
	return items, nil
}

// UpdateItem edits identity fields only. Stock and price change through their ledgers.
func (s *InventoryService) UpdateItem(ctx context.Context, id uuid.UUID, patch domain.ItemPatch) (*domain.Item, error) {
	if patch.Name != nil {
		if err := domain.ValidateItemName(*patch.Name); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := domain.ValidatePhotoRef(patch.PhotoRef); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.GetItem(ctx, id)
	}

	var updated domain.Item
	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		item, err := tx.LockItem(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(item)
		item.UpdatedAt = s.now().UTC()
		if err := tx.UpdateItemDetails(ctx, *item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		s.logFailure("update item", err, zap.String("item_id", id.String()))
		return nil, err
	}

	s.logger.Info("Item updated", zap.String("item_id", id.String()))
	s.afterWrite(ctx, domain.ItemUpdated{ItemID: id, Name: updated.Name})
	return &updated, nil
}

// DeleteItem removes the item and, by cascade, its whole ledger history.
func (s *InventoryService) DeleteItem(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.LockItem(ctx, id); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, id)
	})
	if err != nil {
		s.logFailure("delete item", err, zap.String("item_id", id.String()))
		return err
	}

	s.logger.Info("Item deleted", zap.String("item_id", id.String()))
	s.afterWrite(ctx, domain.ItemDeleted{ItemID: id})
	return nil
}

// AdjustStock appends a signed delta to the stock ledger and moves the denormalized
// stock by the same amount. Stock may go negative.
func (s *InventoryService) AdjustStock(ctx context.Context, id uuid.UUID, adj domain.StockAdjustment) (domain.StockTotal, error) {
	now := s.now().UTC()
	txnDate := domain.DateOf(now)
	if adj.TxnDate != nil {
		if adj.TxnDate.IsZero() {
			return domain.StockTotal{}, domain.InvalidArgument("txnDate is not a valid date")
		}
		txnDate = *adj.TxnDate
	}
	note := nonEmpty(adj.Note)
	if err := domain.ValidateNote(note); err != nil {
		return domain.StockTotal{}, err
	}

	var total int64
	err := s.db.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.LockItem(ctx, id); err != nil {
			return err
		}
		if err := tx.AppendStockEntry(ctx, domain.StockEntry{
			ItemID:    id,
			Delta:     adj.Delta,
			Note:      note,
			TxnDate:   txnDate,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		var err error
		total, err = tx.IncrementStock(ctx, id, adj.Delta)
		return err
	})
	if err != nil {
		s.logFailure("adjust stock", err, zap.String("item_id", id.String()), zap.Int64("delta", adj.Delta))
		return domain.StockTotal{}, err
	}

	s.logger.Info("Stock adjusted",
		zap.String("item_id", id.String()),
		zap.Int64("delta", adj.Delta),
		zap.String("txn_date", txnDate.String()),
		zap.Int64("total_stock", total))

	s.afterWrite(ctx, domain.StockAdjusted{
		ItemID:     id,
		Delta:      adj.Delta,
		Note:       note,
		TxnDate:    txnDate,
		TotalStock: total,
	})
	return domain.StockTotal{ItemID: id, TotalStock: total}, nil
}

// SetPrice appends a price entry and overwrites the current price. The current price is
// whichever was set last, even when an earlier entry has a later effective date.
func (s *InventoryService) SetPrice(ctx context.Context, id uuid.UUID, rawPrice string, effectiveDate domain.Date) (domain.PriceChange, error) {
	price, err := domain.ParsePrice(rawPrice)
	if err != nil {
		return domain.PriceChange{}, err
	}
	if effectiveDate.IsZero() {
		return domain.PriceChange{}, domain.InvalidArgument("effectiveDate is required")
	}

	now := s.now().UTC()
	err = s.db.WithinTx(ctx, func(tx port.Tx) error {
		if _, err := tx.LockItem(ctx, id); err != nil {
			return err
		}
		if err := tx.AppendPriceEntry(ctx, domain.PriceEntry{
			ItemID:        id,
			Price:         price,
			EffectiveDate: effectiveDate,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		return tx.SetCurrentPrice(ctx, id, price)
	})
	if err != nil {
		s.logFailure("set price", err, zap.String("item_id", id.String()))
		return domain.PriceChange{}, err
	}

	s.logger.Info("Price set",
		zap.String("item_id", id.String()),
		zap.String("price", domain.FormatPrice(price)),
		zap.String("effective_date", effectiveDate.String()))

	s.afterWrite(ctx, domain.PriceSet{
		ItemID:        id,
		Price:         domain.FormatPrice(price),
		EffectiveDate: effectiveDate,
	})
	return domain.PriceChange{ItemID: id, Price: price, EffectiveDate: effectiveDate}, nil
}

// StockReport sums every item's stock ledger up to and including date.
func (s *InventoryService) StockReport(ctx context.Context, date domain.Date) ([]domain.StockBalance, error) {
	return cachedReport(ctx, s, stockReportKind, date, s.db.StockAsOf)
}

// PriceReport resolves the price in effect for every item on date.
func (s *InventoryService) PriceReport(ctx context.Context, date domain.Date) ([]domain.PriceQuote, error) {
	return cachedReport(ctx, s, priceReportKind, date, s.db.PriceAsOf)
}

func (s *InventoryService) StockHistory(ctx context.Context, id uuid.UUID) ([]domain.StockEntry, error) {
	if _, err := s.GetItem(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.db.StockEntries(ctx, id)
	if err != nil {
		s.logFailure("stock history", err, zap.String("item_id", id.String()))
		return nil, err
	}
	return entries, nil
}

func (s *InventoryService) PriceHistory(ctx context.Context, id uuid.UUID) ([]domain.PriceEntry, error) {
	if _, err := s.GetItem(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.db.PriceEntries(ctx, id)
	if err != nil {
		s.logFailure("price history", err, zap.String("item_id", id.String()))
		return nil, err
	}
	return entries, nil
}

func cachedReport[T any](
	ctx context.Context,
	s *InventoryService,
	kind string,
	date domain.Date,
	load func(context.Context, domain.Date) ([]T, error),
) ([]T, error) {
	if !s.reportCacheUsable(ctx) {
		return loadReport(ctx, s, kind, date, load)
	}

	body, generation, hit, err := s.cache.GetReport(ctx, kind, date.String())
	if err != nil {
		s.logger.Warn("Report cache read failed", zap.String("kind", kind), zap.Error(err))
		return loadReport(ctx, s, kind, date, load)
	}
	if hit {
		var rows []T
		if err := json.Unmarshal(body, &rows); err == nil {
			return rows, nil
		}
		s.logger.Warn("Discarding undecodable cached report", zap.String("kind", kind))
	}

	rows, err := loadReport(ctx, s, kind, date, load)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal(rows); err == nil {
		if err := s.cache.SetReport(ctx, kind, date.String(), generation, body); err != nil {
			s.logger.Warn("Report cache write failed", zap.String("kind", kind), zap.Error(err))
		}
	}
	return rows, nil
}

func loadReport[T any](
	ctx context.Context,
	s *InventoryService,
	kind string,
	date domain.Date,
	load func(context.Context, domain.Date) ([]T, error),
) ([]T, error) {
	rows, err := load(ctx, date)
	if err != nil {
		s.logFailure(kind+" report", err, zap.String("date", date.String()))
		return nil, err
	}
	return rows, nil
}

// reportCacheUsable reports whether cached reports can be trusted. After a failed
// invalidation the cache is bypassed until a new generation has been started.
func (s *InventoryService) reportCacheUsable(ctx context.Context) bool {
	failures := s.invalidationFailures.Load()
	if failures == s.invalidationsCovered.Load() {
		return true
	}
	if err := s.cache.InvalidateReports(ctx); err != nil {
		s.logger.Warn("Report cache still stale; bypassing", zap.Error(err))
		return false
	}
	for {
		covered := s.invalidationsCovered.Load()
		if covered >= failures || s.invalidationsCovered.CompareAndSwap(covered, failures) {
			break
		}
	}
	s.logger.Info("Report cache generation restored")
	return true
}

// afterWrite runs once a transaction has committed. Failures here never fail the write.
func (s *InventoryService) afterWrite(ctx context.Context, event domain.Event) {
	if err := s.cache.InvalidateReports(ctx); err != nil {
		s.invalidationFailures.Add(1)
		s.logger.Warn("Report cache invalidation failed", zap.Error(err))
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("type", event.Type()),
			zap.String("item_id", event.AggregateID().String()),
			zap.Error(err))
	}
}

func (s *InventoryService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, domain.ErrUnavailable) {
		s.logger.Error("Failed to "+op, fields...)
		return
	}
	s.logger.Debug("Rejected "+op, fields...)
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
