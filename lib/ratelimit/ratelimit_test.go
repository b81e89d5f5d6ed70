package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterNeverBlocks(t *testing.T) {
	l := New(0, time.Minute)

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.Equal(t, 50, l.Total())
}

func TestWaitBlocksAtCeiling(t *testing.T) {
	window := 300 * time.Millisecond
	l := New(3, window)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), window/2, "requests under the ceiling must not block")

	require.NoError(t, l.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), window, "request past the ceiling must wait for a slot")
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New(1, time.Minute)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeferDelaysSubsequentWaits(t *testing.T) {
	l := New(0, time.Minute)
	delay := 200 * time.Millisecond
	l.Defer(delay)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), delay)

	// A shorter hint never shrinks an already pending delay.
	l.Defer(time.Hour)
	l.Defer(time.Millisecond)
	l.mu.Lock()
	until := l.deferUntil
	l.mu.Unlock()
	require.Greater(t, time.Until(until), 30*time.Minute)
}

func TestConcurrentWaitersSerialize(t *testing.T) {
	window := 250 * time.Millisecond
	l := New(5, window)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(context.Background()))
		}()
	}
	wg.Wait()

	// 10 requests at 5 per window must span at least one full window.
	require.GreaterOrEqual(t, time.Since(start), window)
	require.Equal(t, 10, l.Total())
}
