package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		Name:                 "test",
		MaxFailures:          2,
		Timeout:              50 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	fail := func() (interface{}, error) { return nil, errors.New("down") }
	ok := func() (interface{}, error) { return "ok", nil }

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), fail)
		require.Error(t, err)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.Execute(context.Background(), ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, "half-open", cb.State())

	out, err := cb.Execute(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "closed", cb.State())

	m := cb.Metrics()
	assert.Equal(t, uint64(4), m.TotalRequests)
	assert.Equal(t, uint64(1), m.TotalSuccesses)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestExecute_Typed(t *testing.T) {
	cb := NewCircuitBreaker("typed", nil)
	vec, err := execute(context.Background(), cb, "test", func() ([]float32, error) {
		return []float32{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
