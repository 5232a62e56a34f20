package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Total string `json:"total"`
}

func TestMemoryReportCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryReportCache()
	c.now = func() time.Time { return now }

	require.NoError(t, SetJSON(ctx, c, "report:cafe_a:daily:2024-06-01", &sample{Total: "10"}, time.Minute))
	require.NoError(t, SetJSON(ctx, c, "report:cafe_b:daily:2024-06-01", &sample{Total: "20"}, time.Minute))

	got, ok, err := GetJSON[sample](ctx, c, "report:cafe_a:daily:2024-06-01")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10", got.Total)

	require.NoError(t, c.InvalidatePrefix(ctx, "report:cafe_a:"))
	_, ok, err = c.Get(ctx, "report:cafe_a:daily:2024-06-01")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, _ = c.Get(ctx, "report:cafe_b:daily:2024-06-01")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "report:cafe_b:daily:2024-06-01")
	require.False(t, ok)
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	var c ReportCache = NoopReportCache{}
	require.NoError(t, SetJSON(ctx, c, "k", &sample{Total: "1"}, time.Minute))
	_, ok, err := GetJSON[sample](ctx, c, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
