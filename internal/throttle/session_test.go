package throttle

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldEmitOncePerWindow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	th := NewSessionThrottle()
	th.now = func() time.Time { return clock }

	cooldown := 30 * time.Minute

	require.True(t, th.ShouldEmit("/buy-steel|page_view", cooldown))
	require.False(t, th.ShouldEmit("/buy-steel|page_view", cooldown))

	clock = clock.Add(29 * time.Minute)
	require.False(t, th.ShouldEmit("/buy-steel|page_view", cooldown))

	clock = clock.Add(time.Minute)
	require.True(t, th.ShouldEmit("/buy-steel|page_view", cooldown))
}

func TestShouldEmitIndependentKeys(t *testing.T) {
	th := NewSessionThrottle()
	require.True(t, th.ShouldEmit("/buy-steel|page_view", time.Minute))
	require.True(t, th.ShouldEmit("/buy-steel|cta_click", time.Minute))
	require.True(t, th.ShouldEmit("/buy-copper|page_view", time.Minute))
}

func TestShouldEmitSameTick(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	th := NewSessionThrottle()
	th.now = func() time.Time { return fixed }

	// rapid re-renders land on the identical timestamp; only one wins
	require.True(t, th.ShouldEmit("k", time.Second))
	require.False(t, th.ShouldEmit("k", time.Second))
	require.False(t, th.ShouldEmit("k", time.Second))
}

func TestShouldEmitConcurrent(t *testing.T) {
	th := NewSessionThrottle()

	var wg sync.WaitGroup
	var mu sync.Mutex
	emitted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.ShouldEmit("same-key", time.Minute) {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, emitted)
}

func TestSweepEvictsExpired(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	th := NewSessionThrottle()
	th.now = func() time.Time { return clock }

	for i := 0; i < sweepThreshold; i++ {
		require.True(t, th.ShouldEmit(strconv.Itoa(i)+"-key", time.Minute))
	}
	require.Equal(t, sweepThreshold, th.Len())

	clock = clock.Add(2 * time.Minute)
	require.True(t, th.ShouldEmit("fresh", time.Minute))
	require.Equal(t, 1, th.Len())
}

func TestTTLCache(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewTTLCache[string](10 * time.Minute)
	c.now = func() time.Time { return clock }

	_, ok := c.Get("session-1")
	require.False(t, ok)

	c.Set("session-1", "AE")
	got, ok := c.Get("session-1")
	require.True(t, ok)
	require.Equal(t, "AE", got)

	clock = clock.Add(10 * time.Minute)
	_, ok = c.Get("session-1")
	require.False(t, ok)
}
