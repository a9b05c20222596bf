package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/adapter/events"
	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	totalCreates     = 50
	totalAdjustments = 200
	codePrefix       = "STR"
)

// Runs against MySQL when MYSQL_DSN is set, otherwise in memory.
func main() {
	ctx := context.Background()

	db := openStorage()
	inventory := service.NewInventoryService(db, storage.NoopCache{}, events.NewLogPublisher(zap.NewNop()), zap.NewNop(), codePrefix)

	// Phase 1: concurrent creation must hand out unique, gap-free codes
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		codes   []string
		created []domain.Item
		failed  atomic.Int32
	)
	start := time.Now()

	for i := 0; i < totalCreates; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			stock := "1"
			item, err := inventory.CreateItem(ctx, domain.CreateItemInput{
				Name:  fmt.Sprintf("stress-item-%03d", n),
				Stock: &stock,
			})
			if err != nil {
				failed.Add(1)
				return
			}
			mu.Lock()
			codes = append(codes, item.Code)
			created = append(created, *item)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	createElapsed := time.Since(start)

	// Phase 2: concurrent adjustments on one item must keep the total equal to the ledger sum
	var adjustFailed atomic.Int32
	if len(created) > 0 {
		target := created[0].ID
		start = time.Now()
		for i := 0; i < totalAdjustments; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				delta := int64(1)
				if n%4 == 0 {
					delta = -1
				}
				if _, err := inventory.AdjustStock(ctx, target, domain.StockAdjustment{Delta: delta}); err != nil {
					adjustFailed.Add(1)
				}
			}(i)
		}
		wg.Wait()
	}
	adjustElapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Creates:          %d (failed %d) in %v\n", totalCreates, failed.Load(), createElapsed)
	fmt.Printf("Adjustments:      %d (failed %d) in %v\n", totalAdjustments, adjustFailed.Load(), adjustElapsed)
	fmt.Println("==========================================")

	checkCodes(codes)
	if len(created) > 0 {
		checkStock(ctx, inventory, created[0].ID)
	}
}

func openStorage() port.DatabaseRepository {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return storage.NewMemoryAdapter()
	}

	normalized, err := storage.NormalizeDSN(dsn)
	if err != nil {
		log.Fatalf("invalid MYSQL_DSN: %v", err)
	}
	db, err := sqlx.Connect("mysql", normalized)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := storage.Migrate(db.DB, storage.MigrateUp); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	return storage.NewMySQLAdapter(db)
}

func checkCodes(codes []string) {
	sort.Strings(codes)
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			fmt.Printf("FAIL: duplicate code %s\n", c)
			return
		}
		seen[c] = true
	}

	// Codes within one month bucket must be consecutive.
	for i := 1; i < len(codes); i++ {
		prev, cur := codes[i-1], codes[i]
		if prev[:len(prev)-5] != cur[:len(cur)-5] {
			continue
		}
		var a, b int
		fmt.Sscanf(prev[len(prev)-5:], "%d", &a)
		fmt.Sscanf(cur[len(cur)-5:], "%d", &b)
		if b != a+1 {
			fmt.Printf("FAIL: gap between %s and %s\n", prev, cur)
			return
		}
	}
	fmt.Printf("PASS: %d unique consecutive codes\n", len(codes))
}

func checkStock(ctx context.Context, inventory *service.InventoryService, id uuid.UUID) {
	item, err := inventory.GetItem(ctx, id)
	if err != nil {
		fmt.Printf("FAIL: reload item: %v\n", err)
		return
	}
	entries, err := inventory.StockHistory(ctx, id)
	if err != nil {
		fmt.Printf("FAIL: load stock ledger: %v\n", err)
		return
	}

	var sum int64
	for _, e := range entries {
		sum += e.Delta
	}
	if sum != item.Stock {
		fmt.Printf("FAIL: denormalized stock %d, ledger sum %d\n", item.Stock, sum)
		return
	}
	fmt.Printf("PASS: stock %d matches ledger (%d entries)\n", item.Stock, len(entries))
}
