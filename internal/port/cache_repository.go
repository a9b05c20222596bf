package port

import "context"

type CacheRepository interface {
	// GetReport looks up a cached report under the current data generation.
	// The generation is returned on a miss too, so the caller stores what it computes under it.
	GetReport(ctx context.Context, kind, date string) (body []byte, generation int64, hit bool, err error)

	// SetReport caches a report body computed while generation was current
	SetReport(ctx context.Context, kind, date string, generation int64, body []byte) error

	// InvalidateReports starts a new data generation so earlier reports are never served again
	InvalidateReports(ctx context.Context) error

	// SetIdempotency sets a key for replay checks, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
