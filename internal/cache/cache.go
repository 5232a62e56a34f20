package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ReportCache stores encoded report payloads. Keys are grouped by prefix so
// every report of one café can be dropped at once.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidatePrefix(_ context.Context, _ string) error {
	return nil
}

// GetJSON decodes a cached value into T.
func GetJSON[T any](ctx context.Context, c ReportCache, key string) (*T, bool, error) {
	payload, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, false, err
	}
	return &value, true, nil
}

func SetJSON[T any](ctx context.Context, c ReportCache, key string, value *T, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, payload, ttl)
}
