package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// MemoryAdapter keeps everything in process. Transactions run one at a time against a
// copy of the state that replaces the live state only on success.
type MemoryAdapter struct {
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	items       map[uuid.UUID]domain.Item
	counters    map[domain.SequenceBucket]int64
	stock       []domain.StockEntry
	prices      []domain.PriceEntry
	users       map[uuid.UUID]domain.User
	lastEntryID int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		state: &memoryState{
			items:    make(map[uuid.UUID]domain.Item),
			counters: make(map[domain.SequenceBucket]int64),
			users:    make(map[uuid.UUID]domain.User),
		},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		items:       make(map[uuid.UUID]domain.Item, len(s.items)),
		counters:    make(map[domain.SequenceBucket]int64, len(s.counters)),
		stock:       append([]domain.StockEntry(nil), s.stock...),
		prices:      append([]domain.PriceEntry(nil), s.prices...),
		users:       s.users,
		lastEntryID: s.lastEntryID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memoryTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryAdapter) GetItem(_ context.Context, id uuid.UUID) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.state.items[id]
	if !ok {
		return nil, domain.NotFound("item not found")
	}
	return &item, nil
}

func (m *MemoryAdapter) ListItems(_ context.Context) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.Item, 0, len(m.state.items))
	for _, item := range m.state.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items, nil
}

func (m *MemoryAdapter) StockAsOf(_ context.Context, date domain.Date) ([]domain.StockBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byItem := make(map[uuid.UUID][]domain.StockEntry)
	for _, e := range m.state.stock {
		byItem[e.ItemID] = append(byItem[e.ItemID], e)
	}

	rows := make([]domain.StockBalance, 0, len(m.state.items))
	for _, item := range m.sortedByName() {
		rows = append(rows, domain.StockBalance{
			ItemID:     item.ID,
			ItemName:   item.Name,
			TotalStock: domain.SumStockAsOf(byItem[item.ID], date),
		})
	}
	return rows, nil
}

func (m *MemoryAdapter) PriceAsOf(_ context.Context, date domain.Date) ([]domain.PriceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byItem := make(map[uuid.UUID][]domain.PriceEntry)
	for _, e := range m.state.prices {
		byItem[e.ItemID] = append(byItem[e.ItemID], e)
	}

	rows := make([]domain.PriceQuote, 0, len(m.state.items))
	for _, item := range m.sortedByName() {
		quote := domain.PriceQuote{ItemID: item.ID, ItemName: item.Name}
		if entry, ok := domain.LatestPriceAsOf(byItem[item.ID], date); ok {
			quote.Price = decimal.NewNullDecimal(entry.Price)
		}
		rows = append(rows, quote)
	}
	return rows, nil
}

func (m *MemoryAdapter) StockEntries(_ context.Context, itemID uuid.UUID) ([]domain.StockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []domain.StockEntry{}
	for _, e := range m.state.stock {
		if e.ItemID == itemID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TxnDate.Equal(entries[j].TxnDate) {
			return entries[i].TxnDate.Before(entries[j].TxnDate)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (m *MemoryAdapter) PriceEntries(_ context.Context, itemID uuid.UUID) ([]domain.PriceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []domain.PriceEntry{}
	for _, e := range m.state.prices {
		if e.ItemID == itemID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EffectiveDate.Equal(entries[j].EffectiveDate) {
			return entries[i].EffectiveDate.Before(entries[j].EffectiveDate)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// sortedByName must be called with the read lock held.
func (m *MemoryAdapter) sortedByName() []domain.Item {
	items := make([]domain.Item, 0, len(m.state.items))
	for _, item := range m.state.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}

type memoryTx struct {
	s *memoryState
}

func (t *memoryTx) NextSequence(_ context.Context, bucket domain.SequenceBucket) (int64, error) {
	t.s.counters[bucket]++
	return t.s.counters[bucket], nil
}

func (t *memoryTx) InsertItem(_ context.Context, item domain.Item) error {
	if _, exists := t.s.items[item.ID]; exists {
		return domain.Conflict("item already exists")
	}
	for _, other := range t.s.items {
		if other.Code == item.Code {
			return domain.Conflict("item code already exists")
		}
	}
	t.s.items[item.ID] = item
	return nil
}

func (t *memoryTx) LockItem(_ context.Context, id uuid.UUID) (*domain.Item, error) {
	item, ok := t.s.items[id]
	if !ok {
		return nil, domain.NotFound("item not found")
	}
	return &item, nil
}

func (t *memoryTx) UpdateItemDetails(_ context.Context, item domain.Item) error {
	current, ok := t.s.items[item.ID]
	if !ok {
		return domain.NotFound("item not found")
	}
	current.Name = item.Name
	current.PhotoRef = item.PhotoRef
	current.UpdatedAt = item.UpdatedAt
	t.s.items[item.ID] = current
	return nil
}

func (t *memoryTx) DeleteItem(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.items[id]; !ok {
		return domain.NotFound("item not found")
	}
	delete(t.s.items, id)

	stock := t.s.stock[:0:0]
	for _, e := range t.s.stock {
		if e.ItemID != id {
			stock = append(stock, e)
		}
	}
	t.s.stock = stock

	prices := t.s.prices[:0:0]
	for _, e := range t.s.prices {
		if e.ItemID != id {
			prices = append(prices, e)
		}
	}
	t.s.prices = prices
	return nil
}

func (t *memoryTx) AppendStockEntry(_ context.Context, entry domain.StockEntry) error {
	if _, ok := t.s.items[entry.ItemID]; !ok {
		return domain.NotFound("item not found")
	}
	t.s.lastEntryID++
	entry.ID = t.s.lastEntryID
	t.s.stock = append(t.s.stock, entry)
	return nil
}

func (t *memoryTx) IncrementStock(_ context.Context, id uuid.UUID, delta int64) (int64, error) {
	item, ok := t.s.items[id]
	if !ok {
		return 0, domain.NotFound("item not found")
	}
	total, err := domain.AddStock(item.Stock, delta)
	if err != nil {
		return 0, err
	}
	item.Stock = total
	t.s.items[id] = item
	return item.Stock, nil
}

func (t *memoryTx) AppendPriceEntry(_ context.Context, entry domain.PriceEntry) error {
	if _, ok := t.s.items[entry.ItemID]; !ok {
		return domain.NotFound("item not found")
	}
	t.s.lastEntryID++
	entry.ID = t.s.lastEntryID
	t.s.prices = append(t.s.prices, entry)
	return nil
}

func (t *memoryTx) SetCurrentPrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	item, ok := t.s.items[id]
	if !ok {
		return domain.NotFound("item not found")
	}
	item.Price = decimal.NewNullDecimal(price)
	t.s.items[id] = item
	return nil
}

func (m *MemoryAdapter) CreateUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.state.users {
		if strings.EqualFold(other.Username, user.Username) {
			return domain.Conflict("username already taken")
		}
	}
	m.state.users[user.ID] = user
	return nil
}

func (m *MemoryAdapter) FindUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.state.users[id]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return &user, nil
}

func (m *MemoryAdapter) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.state.users {
		if strings.EqualFold(user.Username, username) {
			return &user, nil
		}
	}
	return nil, domain.NotFound("user not found")
}

func (m *MemoryAdapter) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]domain.User, 0, len(m.state.users))
	for _, user := range m.state.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID.String() < users[j].ID.String()
	})
	return users, nil
}

func (m *MemoryAdapter) UpdateUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.users[user.ID]; !ok {
		return domain.NotFound("user not found")
	}
	for id, other := range m.state.users {
		if id != user.ID && strings.EqualFold(other.Username, user.Username) {
			return domain.Conflict("username already taken")
		}
	}
	m.state.users[user.ID] = user
	return nil
}

func (m *MemoryAdapter) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.users[id]; !ok {
		return domain.NotFound("user not found")
	}
	delete(m.state.users, id)
	return nil
}
