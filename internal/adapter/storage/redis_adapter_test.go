package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func cleanKeys(t *testing.T, client *redis.Client, pattern string) {
	t.Helper()
	ctx := context.Background()
	keys, err := client.Keys(ctx, pattern).Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, client.Del(ctx, keys...).Err())
	}
}

func TestRedis_ReportGenerations(t *testing.T) {
	client := getRedisClient(t)
	cleanKeys(t, client, "report:*")
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	_, gen, hit, err := adapter.GetReport(ctx, "stock", "2025-01-01")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, adapter.SetReport(ctx, "stock", "2025-01-01", gen, []byte(`[1]`)))

	body, gen2, hit, err := adapter.GetReport(ctx, "stock", "2025-01-01")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, gen, gen2)
	assert.Equal(t, `[1]`, string(body))

	require.NoError(t, adapter.InvalidateReports(ctx))

	_, gen3, hit, err := adapter.GetReport(ctx, "stock", "2025-01-01")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, gen+1, gen3)
}

func TestRedis_StaleGenerationNeverServed(t *testing.T) {
	client := getRedisClient(t)
	cleanKeys(t, client, "report:*")
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	// A reader computes under the old generation while a writer invalidates.
	_, oldGen, _, err := adapter.GetReport(ctx, "price", "2025-01-01")
	require.NoError(t, err)
	require.NoError(t, adapter.InvalidateReports(ctx))
	require.NoError(t, adapter.SetReport(ctx, "price", "2025-01-01", oldGen, []byte(`["stale"]`)))

	_, _, hit, err := adapter.GetReport(ctx, "price", "2025-01-01")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedis_SetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	cleanKeys(t, client, "replay:*")
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "key:deadbeef")
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())

	ttl, err := client.TTL(ctx, "replay:key:deadbeef").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	var cache NoopCache

	_, _, hit, err := cache.GetReport(ctx, "stock", "2025-01-01")
	require.NoError(t, err)
	assert.False(t, hit)

	ok, err := cache.SetIdempotency(ctx, "anything")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = cache.SetIdempotency(ctx, "anything")
	assert.True(t, ok)
}
