package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(clock *fakeClock, opts ...Option[[]string]) *Cache[[]string] {
	opts = append(opts, withClock[[]string](clock.Now))
	return New[[]string]("roster", NewMemoryStore(), time.Minute, zerolog.Nop(), opts...)
}

func TestGetFetchesOnceWhileFresh(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(clock)
	var calls int32
	fetch := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"u1"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background(), "it", 0, fetch)
		require.NoError(t, err)
		require.Equal(t, []string{"u1"}, got)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestStaleValueServedWhileRevalidating(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var changes []string
	c := newTestCache(clock, WithOnChange(func(key string, value []string) {
		changes = append(changes, key)
	}))

	version := []string{"u1"}
	fetch := func(context.Context) ([]string, error) { return version, nil }

	_, err := c.Get(context.Background(), "it", 0, fetch)
	require.NoError(t, err)

	version = []string{"u1", "u2"}
	clock.Advance(2 * time.Minute)

	got, err := c.Get(context.Background(), "it", 0, fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, got, "stale value returned immediately")

	c.Wait()
	got, err = c.Get(context.Background(), "it", 0, fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, got)
	require.Equal(t, []string{"it", "it"}, changes)
}

func TestFailedRefreshKeepsStaleValue(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(clock)

	_, err := c.Get(context.Background(), "it", 0, func(context.Context) ([]string, error) { return []string{"u1"}, nil })
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	failing := func(context.Context) ([]string, error) { return nil, errors.New("directory down") }
	got, err := c.Get(context.Background(), "it", 0, failing)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, got)
	c.Wait()

	got, err = c.Get(context.Background(), "it", 0, failing)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, got)
}

func TestMissPropagatesFetchError(t *testing.T) {
	c := newTestCache(&fakeClock{})
	_, err := c.Get(context.Background(), "it", 0, func(context.Context) ([]string, error) {
		return nil, errors.New("directory down")
	})
	require.ErrorContains(t, err, "directory down")
}

func TestInvalidateForcesInlineFetch(t *testing.T) {
	c := newTestCache(&fakeClock{})
	ctx := context.Background()
	n := 0
	fetch := func(context.Context) ([]string, error) {
		n++
		return []string{"v"}, nil
	}

	_, _ = c.Get(ctx, "a", 0, fetch)
	_, _ = c.Get(ctx, "b", 0, fetch)
	require.Equal(t, 2, n)

	require.NoError(t, c.Invalidate(ctx, "a"))
	_, _ = c.Get(ctx, "a", 0, fetch)
	_, _ = c.Get(ctx, "b", 0, fetch)
	require.Equal(t, 3, n)

	require.NoError(t, c.InvalidateAll(ctx))
	_, _ = c.Get(ctx, "a", 0, fetch)
	_, _ = c.Get(ctx, "b", 0, fetch)
	require.Equal(t, 5, n)
}

func TestPerCallTTLOverridesDefault(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(clock)
	n := 0
	fetch := func(context.Context) ([]string, error) {
		n++
		return []string{"v"}, nil
	}

	_, _ = c.Get(context.Background(), "a", 0, fetch)
	clock.Advance(10 * time.Second)
	_, _ = c.Get(context.Background(), "a", time.Hour, fetch)
	c.Wait()
	require.Equal(t, 1, n)
}
