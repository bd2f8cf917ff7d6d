package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		Now:              clock.Now,
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 2,
		Now:              clock.Now,
	})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	clock.Advance(time.Second)

	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	err := cb.Call(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("predictor", CircuitBreakerConfig{FailureThreshold: 1})
	assert.Same(t, a, r.GetOrCreate("predictor", CircuitBreakerConfig{}))
	r.GetOrCreate("embedder", CircuitBreakerConfig{})

	assert.False(t, r.Degraded())
	_ = a.Call(context.Background(), fail)
	assert.True(t, r.Degraded())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "embedder", stats[0].Name)
	assert.Equal(t, StateOpen, stats[1].State)

	data, err := json.Marshal(stats[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"predictor","state":"open","failures":1}`, string(data))

	a.Reset()
	assert.False(t, r.Degraded())
}
