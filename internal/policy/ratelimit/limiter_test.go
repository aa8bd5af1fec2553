package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RatePerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.ruled.me/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.ruled.me/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://freefrdi.com/x"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "other hosts have their own bucket")
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://example.com"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RatePerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.test"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.test"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", hostOf("https://Example.com/path"))
	require.Equal(t, "unknown", hostOf("::bad"))
}
