package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *manualClock) *CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:             "identity",
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          10 * time.Second,
		HalfOpenMaxCalls: 2,
		Now:              clock.now,
	})
}

var errProvider = errors.New("provider down")

func fail() error    { return errProvider }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errProvider)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	require.Equal(t, StateOpen, cb.GetState())

	clock.advance(11 * time.Second)
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().TotalCalls)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}

	clock.advance(11 * time.Second)
	assert.ErrorIs(t, cb.Execute(fail), errProvider)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_FailureRate(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)

	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	assert.Equal(t, StateClosed, cb.GetState())
	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(succeed))
}
