package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetry(t *testing.T) {
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		attempts  int
		failFirst int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, failFirst: 0, wantCalls: 1},
		{name: "recovers", attempts: 3, failFirst: 2, err: errBoom, wantCalls: 3},
		{name: "exhausted", attempts: 3, failFirst: 5, err: errBoom, wantCalls: 3, wantErr: errBoom},
		{name: "not retryable", attempts: 3, failFirst: 5, err: errFatal, wantCalls: 1, wantErr: errFatal},
		{name: "zero attempts still calls once", attempts: 0, failFirst: 5, err: errBoom, wantCalls: 1, wantErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastRetry(tt.attempts)
			cfg.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }

			calls := 0
			err := Retry(context.Background(), cfg, func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, cfg, func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 10))

	cfg.JitterEnabled = true
	for i := 0; i < 20; i++ {
		d := calculateDelay(cfg, 0)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 110*time.Millisecond)
	}

	cfg = RetryConfig{InitialDelay: time.Nanosecond, JitterEnabled: true}
	assert.Equal(t, time.Nanosecond, calculateDelay(cfg, 3), "tiny delays skip jitter and factors below one are ignored")
}

func TestNewPooledClient(t *testing.T) {
	c := NewPooledClient(ClientConfig{MaxPerHost: 4})
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)

	def := DefaultClientConfig()
	assert.Equal(t, 4, tr.MaxConnsPerHost)
	assert.Equal(t, 4, tr.MaxIdleConnsPerHost)
	assert.Equal(t, def.MaxIdle, tr.MaxIdleConns)
	assert.Equal(t, def.IdleTimeout, tr.IdleConnTimeout)
	assert.Zero(t, c.Timeout, "deadlines come from the request context")
}
