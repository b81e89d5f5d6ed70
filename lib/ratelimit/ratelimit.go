// Package ratelimit paces outgoing requests with a sliding window of
// timestamps. The archive starts returning 429s at around 12 requests
// per minute, so every session funnels its traffic through one Limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxRequests matches the ceiling the archive enforces.
	DefaultMaxRequests = 12
	DefaultWindow      = time.Minute
)

// Limiter admits at most maxRequests requests within the trailing
// window. It never retries anything on its own; when the remote host
// reports throttling the caller feeds the Retry-After hint to Defer and
// decides what to do next.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
	deferUntil  time.Time
	total       int
}

// New returns a Limiter admitting maxRequests per window. A
// non-positive maxRequests disables proactive throttling entirely, a
// non-positive window falls back to DefaultWindow.
func New(maxRequests int, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
	}
}

// Wait blocks until a request may be issued and records its timestamp.
// Window trimming, the capacity check and the timestamp insertion happen
// as one atomic step; concurrent callers serialize on the internal lock
// so two of them can never both slip under the ceiling at once.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until := l.deferUntil; time.Now().Before(until) {
		if err := sleepUntil(ctx, until); err != nil {
			return err
		}
	}

	if l.maxRequests > 0 {
		now := time.Now()
		l.trim(now)
		if len(l.stamps) >= l.maxRequests {
			// Wait until the oldest stamp exits the window, freeing a
			// slot for this request.
			if err := sleepUntil(ctx, l.stamps[0].Add(l.window)); err != nil {
				return err
			}
			l.stamps = l.stamps[1:]
		}
		l.stamps = append(l.stamps, time.Now())
	}
	l.total++
	return nil
}

// Defer pushes back every subsequent Wait until d has elapsed. Used to
// honor Retry-After hints from throttling responses.
func (l *Limiter) Defer(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.deferUntil) {
		l.deferUntil = until
	}
	l.mu.Unlock()
}

// Total reports how many requests this limiter has admitted.
func (l *Limiter) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// stamps older than the window can be forgotten; the slice is ordered
// so trimming stops at the first stamp still inside it.
func (l *Limiter) trim(now time.Time) {
	for len(l.stamps) > 0 && now.Sub(l.stamps[0]) >= l.window {
		l.stamps = l.stamps[1:]
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
