package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastBackoff keeps retry tests in the millisecond range.
func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Base: time.Millisecond, Cap: 4 * time.Millisecond}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastBackoff(3), nil, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastBackoff(3), nil, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(eris.New("flaky"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(3), nil, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("still down"), 502)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(3), nil, func(context.Context) (int, error) {
		calls++
		return 0, eris.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomClassifier(t *testing.T) {
	b := fastBackoff(3)
	b.Retryable = func(err error) bool { return err.Error() == "again" }

	calls := 0
	_, err := Retry(context.Background(), b, nil, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, eris.New("again")
		}
		return 0, eris.New("done")
	})
	require.Error(t, err)
	assert.Equal(t, "done", err.Error())
	assert.Equal(t, 2, calls)
}

func TestRetry_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Retry(ctx, Backoff{Attempts: 5, Base: time.Hour, Cap: time.Hour}, nil, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("flaky"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_LastAttemptNeverSleeps(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), Backoff{Attempts: 1, Base: time.Hour, Cap: time.Hour}, nil, func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(eris.New("flaky"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoff_DelayDoublesToCap(t *testing.T) {
	b := Backoff{Attempts: 5, Base: 2 * time.Second, Cap: 8 * time.Second}.normalized()

	assert.Equal(t, 2*time.Second, b.delay(0))
	assert.Equal(t, 4*time.Second, b.delay(1))
	assert.Equal(t, 8*time.Second, b.delay(2))
	assert.Equal(t, 8*time.Second, b.delay(3))
}

func TestBackoff_JitterStaysWithinSpread(t *testing.T) {
	b := Backoff{Attempts: 3, Base: 100 * time.Millisecond, Cap: time.Second, Jitter: 0.5}.normalized()

	for i := 0; i < 50; i++ {
		d := b.delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBackoff_NormalizedDefaults(t *testing.T) {
	b := Backoff{}.normalized()
	assert.Equal(t, 3, b.Attempts)
	assert.Equal(t, 500*time.Millisecond, b.Base)
	assert.Equal(t, 30*time.Second, b.Cap)
	assert.NotNil(t, b.Retryable)
}

func TestProviderBackoff(t *testing.T) {
	b := ProviderBackoff()
	assert.Equal(t, 3, b.Attempts)
	assert.Equal(t, 2*time.Second, b.Base)
	assert.Equal(t, 8*time.Second, b.Cap)
}
