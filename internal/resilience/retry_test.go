package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		Attempts:   attempts,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDoVal(t *testing.T) {
	t.Parallel()

	t.Run("succeeds first try", func(t *testing.T) {
		t.Parallel()
		calls := 0
		v, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
			calls++
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient and recovers", func(t *testing.T) {
		t.Parallel()
		calls := 0
		v, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", NewTransientError(errors.New("502"), 502)
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("bad request")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_, err := DoVal(context.Background(), fastRetryConfig(4), func(ctx context.Context) (int, error) {
			calls++
			return 0, NewTransientError(errors.New("timeout"), 504)
		})
		require.Error(t, err)
		assert.Equal(t, 4, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := DoVal(ctx, fastRetryConfig(5), func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, NewTransientError(errors.New("reset"), 0)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("custom ShouldRetry", func(t *testing.T) {
		t.Parallel()
		cfg := fastRetryConfig(3)
		cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }
		calls := 0
		err := Do(context.Background(), cfg, func(ctx context.Context) error {
			calls++
			return errors.New("again")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(NewTransientError(errors.New("503"), 503)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("dial: i/o timeout")))
	assert.False(t, IsTransient(errors.New("401 unauthorized")))
	assert.False(t, IsTransient(errors.New("rate limit exceeded")))
	assert.False(t, IsTransient(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransientHTTPStatus(503))
	assert.True(t, IsTransientHTTPStatus(408))
	// Rate limits rotate credentials instead of retrying in place.
	assert.False(t, IsTransientHTTPStatus(429))
	assert.False(t, IsTransientHTTPStatus(200))
	assert.False(t, IsTransientHTTPStatus(404))
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0})
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, time.Second, backoff(10, cfg))
}
