// Package limiter enforces the free-tier quota with a bucketed sliding
// window. The durable counter store is authoritative across instances; when
// it is unreachable the limiter degrades to a precise-but-local in-process
// window rather than failing the request.
package limiter

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/metrics"
)

// Outcome is the result of a durable-store admission attempt. The fallback
// decision is a visible branch on this value, not an error catch-all.
type Outcome int

const (
	// OutcomeAllowed admits the request.
	OutcomeAllowed Outcome = iota
	// OutcomeDenied rejects the request; the counter was not mutated.
	OutcomeDenied
	// OutcomeUnavailable means the store could not decide; the caller
	// falls back to the in-process window.
	OutcomeUnavailable
)

// graceTTL pads window expiry so clock skew between instances cannot purge a
// still-live bucket.
const graceTTL = time.Hour

// defaultStoreTimeout bounds each durable-store call; past it the in-process
// window answers instead of blocking the request.
const defaultStoreTimeout = 2 * time.Second

// CounterStore is the durable, cross-instance counter backend.
type CounterStore interface {
	// IncrementWindow admits one request for (key, bucket) unless count
	// has reached maxRequests. Must be atomic against concurrent callers.
	IncrementWindow(ctx context.Context, key, bucket string, maxRequests int, now, expiresAt time.Time) (bool, error)

	// WindowCount returns the stored count, 0 for an absent window.
	WindowCount(ctx context.Context, key, bucket string) (int, error)
}

// Limiter is the dual-mode sliding-window rate limiter. Construct once at
// service start and inject into every handler.
type Limiter struct {
	store        CounterStore
	mem          *memoryWindow
	logger       *zap.Logger
	clock        func() time.Time
	storeTimeout time.Duration
}

// Option adjusts limiter construction.
type Option func(*Limiter)

// WithClock overrides the time source; used by tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithStoreTimeout overrides the per-call durable-store deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

// New creates a limiter. A nil store means memory-only operation.
func New(store CounterStore, logger *zap.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		store:        store,
		mem:          newMemoryWindow(),
		logger:       logger,
		clock:        func() time.Time { return time.Now().UTC() },
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request for key fits inside the window.
// Admission mutates the counter; denial does not. Store failures degrade to
// the in-process window and are never surfaced to the caller.
func (l *Limiter) Allow(ctx context.Context, key string, maxRequests int, window time.Duration) bool {
	now := l.clock()

	if l.store != nil {
		switch l.checkStore(ctx, key, maxRequests, window, now) {
		case OutcomeAllowed:
			metrics.RecordLimiterDecision("durable", true)
			return true
		case OutcomeDenied:
			metrics.RecordLimiterDecision("durable", false)
			return false
		case OutcomeUnavailable:
			// fall through to the in-process window
		}
	}

	allowed := l.mem.allow(key, maxRequests, window, now)
	metrics.RecordLimiterDecision("memory", allowed)
	return allowed
}

// Remaining reports how many requests are left in the current window,
// without consuming one. Falls back to the in-process window when the store
// cannot answer.
func (l *Limiter) Remaining(ctx context.Context, key string, maxRequests int, window time.Duration) int {
	now := l.clock()

	if l.store != nil {
		bucket := WindowBucket(now, window)
		storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
		defer cancel()

		count, err := l.store.WindowCount(storeCtx, key, bucket)
		if err == nil {
			if remaining := maxRequests - count; remaining > 0 {
				return remaining
			}
			return 0
		}
		l.logger.Warn("durable rate limit lookup failed, using in-process window",
			zap.String("key", key), zap.Error(err))
	}

	return l.mem.remaining(key, maxRequests, window, now)
}

func (l *Limiter) checkStore(ctx context.Context, key string, maxRequests int, window time.Duration, now time.Time) Outcome {
	bucket := WindowBucket(now, window)
	expiresAt := bucketEnd(now, window).Add(graceTTL)

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	allowed, err := l.store.IncrementWindow(storeCtx, key, bucket, maxRequests, now, expiresAt)
	if err != nil {
		metrics.RecordLimiterFallback()
		l.logger.Warn("durable rate limit check failed, using in-process window",
			zap.String("key", key), zap.Error(err))
		return OutcomeUnavailable
	}
	if allowed {
		return OutcomeAllowed
	}
	return OutcomeDenied
}

// WindowBucket labels the bucket containing now: the UTC calendar date for
// windows of a day or longer, the epoch-bucket index otherwise.
func WindowBucket(now time.Time, window time.Duration) string {
	if window >= 24*time.Hour {
		return now.UTC().Format("2006-01-02")
	}
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.FormatInt(now.UTC().Unix()/seconds, 10)
}

func bucketEnd(now time.Time, window time.Duration) time.Time {
	if window >= 24*time.Hour {
		midnight := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
		return midnight.Add(24 * time.Hour)
	}
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	idx := now.UTC().Unix() / seconds
	return time.Unix((idx+1)*seconds, 0).UTC()
}
