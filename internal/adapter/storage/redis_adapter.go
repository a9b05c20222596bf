package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	reportGenerationKey = "report:generation"
	reportKeyPrefix     = "report:"
	replayKeyPrefix     = "replay:"
)

type RedisAdapter struct {
	client    *redis.Client
	reportTTL time.Duration
	replayTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, reportTTL, replayTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:    client,
		reportTTL: reportTTL,
		replayTTL: replayTTL,
	}
}

func reportKey(kind, date string, generation int64) string {
	return fmt.Sprintf("%s%s:%d:%s", reportKeyPrefix, kind, generation, date)
}

func (r *RedisAdapter) GetReport(ctx context.Context, kind, date string) ([]byte, int64, bool, error) {
	generation, err := r.client.Get(ctx, reportGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, errors.Wrap(err, "read report generation")
	}

	body, err := r.client.Get(ctx, reportKey(kind, date, generation)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, generation, false, nil
	}
	if err != nil {
		return nil, generation, false, errors.Wrap(err, "read report")
	}
	return body, generation, true, nil
}

func (r *RedisAdapter) SetReport(ctx context.Context, kind, date string, generation int64, body []byte) error {
	return r.client.Set(ctx, reportKey(kind, date, generation), body, r.reportTTL).Err()
}

func (r *RedisAdapter) InvalidateReports(ctx context.Context) error {
	return r.client.Incr(ctx, reportGenerationKey).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, replayKeyPrefix+key, 1, r.replayTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// NoopCache is used when no Redis is configured: reports are always recomputed and
// replay checks always pass.
type NoopCache struct{}

func (NoopCache) GetReport(context.Context, string, string) ([]byte, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopCache) SetReport(context.Context, string, string, int64, []byte) error { return nil }

func (NoopCache) InvalidateReports(context.Context) error { return nil }

func (NoopCache) SetIdempotency(context.Context, string) (bool, error) { return true, nil }
