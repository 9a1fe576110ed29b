package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when a call is rejected because the
// provider's breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerState is the externally visible state of one breaker.
type BreakerState string

const (
	BreakerClosed  BreakerState = "closed"
	BreakerOpen    BreakerState = "open"
	BreakerProbing BreakerState = "probing"
)

// Breaker trips after Threshold consecutive counted failures and
// rejects calls for Cooldown. After the cooldown one probe call is let
// through; its outcome decides whether the breaker closes or re-opens.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker builds a breaker for the named upstream. Non-positive
// threshold or cooldown fall back to 5 failures and 30s.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. During an open cooldown it
// returns ErrCircuitOpen; once the cooldown elapses calls are admitted
// as probes until one of them reports an outcome.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return ErrCircuitOpen
	}
	if !b.probing {
		b.probing = true
		zap.L().Info("circuit probing", zap.String("breaker", b.name))
	}
	return nil
}

// Record feeds one call outcome back. counted distinguishes failures
// that should trip the breaker from ones that should not (a permanent
// 4xx says nothing about provider health).
func (b *Breaker) Record(err error, counted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !counted {
		if !b.openedAt.IsZero() {
			zap.L().Info("circuit closed", zap.String("breaker", b.name))
		}
		b.failures = 0
		b.openedAt = time.Time{}
		b.probing = false
		return
	}

	b.failures++
	if b.probing {
		b.openedAt = b.now()
		b.probing = false
		zap.L().Warn("circuit reopened after failed probe",
			zap.String("breaker", b.name))
		return
	}
	if b.openedAt.IsZero() && b.failures >= b.threshold {
		b.openedAt = b.now()
		zap.L().Warn("circuit opened",
			zap.String("breaker", b.name),
			zap.Int("consecutive_failures", b.failures))
	}
}

// State snapshots the breaker for monitoring.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.openedAt.IsZero():
		return BreakerClosed
	case b.probing || b.now().Sub(b.openedAt) >= b.cooldown:
		return BreakerProbing
	default:
		return BreakerOpen
	}
}

// Guard runs fn through the breaker: rejected immediately when open,
// otherwise executed with its outcome recorded. counts classifies which
// errors trip the breaker; nil counts every error.
func Guard[T any](ctx context.Context, b *Breaker, counts func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	counted := err != nil
	if counted && counts != nil {
		counted = counts(err)
	}
	b.Record(err, counted)
	return val, err
}

// BreakerSet lazily maintains one breaker per provider family, all
// sharing a threshold and cooldown.
type BreakerSet struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet builds an empty set with the shared policy.
func NewBreakerSet(threshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		threshold: threshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*Breaker),
	}
}

// For returns the breaker for the named provider, creating it on first
// use.
func (s *BreakerSet) For(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[provider]
	if !ok {
		b = NewBreaker(provider, s.threshold, s.cooldown)
		s.breakers[provider] = b
	}
	return b
}

// Snapshot reports every known breaker's state.
func (s *BreakerSet) Snapshot() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]BreakerState, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}
