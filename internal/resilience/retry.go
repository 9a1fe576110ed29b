package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff is a retry policy: up to Attempts tries, delays doubling from
// Base up to Cap, with optional proportional jitter. Retryable decides
// which errors earn another attempt; nil means IsTransient.
type Backoff struct {
	Attempts  int
	Base      time.Duration
	Cap       time.Duration
	Jitter    float64
	Retryable func(error) bool
}

// ProviderBackoff is the policy for LLM provider calls: three attempts
// with 2s, 4s, 8s delays between them.
func ProviderBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Base:     2 * time.Second,
		Cap:      8 * time.Second,
	}
}

func (b Backoff) normalized() Backoff {
	if b.Attempts < 1 {
		b.Attempts = 3
	}
	if b.Base <= 0 {
		b.Base = 500 * time.Millisecond
	}
	if b.Cap <= 0 {
		b.Cap = 30 * time.Second
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// delay returns the sleep before the retry following attempt (counted
// from zero): Base doubled per attempt, capped, then jittered.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Cap; i++ {
		d *= 2
	}
	if d > b.Cap {
		d = b.Cap
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// Retry runs fn under the policy, returning the first successful value
// or the last error once attempts are exhausted, the error is
// classified permanent, or ctx is done. Each retry is logged on log
// when it is non-nil.
func Retry[T any](ctx context.Context, b Backoff, log *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !b.Retryable(err) || attempt == b.Attempts-1 {
			return zero, lastErr
		}

		wait := b.delay(attempt)
		if log != nil {
			log.Warn("retrying after transient failure",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}
