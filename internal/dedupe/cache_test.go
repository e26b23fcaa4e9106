package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/market-news-radar/internal/dedupe"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("alpha"))
	cache.MarkSeen("alpha")
	require.True(t, cache.IsSeen("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	cache := dedupe.NewCache(10, time.Minute)
	cache.SetClock(func() time.Time { return now })

	cache.MarkSeen("beta")
	require.True(t, cache.IsSeen("beta"))

	now = now.Add(2 * time.Minute)
	require.False(t, cache.IsSeen("beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	cache.MarkSeen("first")
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheMarkSeenBatch(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	cache.MarkSeen("a", "b", "c")
	require.Equal(t, 3, cache.Len())
	require.True(t, cache.IsSeen("b"))
}
