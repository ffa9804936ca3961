package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unixutils/pkg/resilience"
)

var errFetch = errors.New("fetch failed")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBreaker(cfg resilience.Config) (*resilience.CircuitBreaker, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := resilience.NewRegistry(cfg).WithClock(c.Now)
	return reg.Get("example.com"), c
}

func fail(context.Context) error    { return errFetch }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := resilience.NewCircuitBreaker("example.com", resilience.DefaultConfig())

	assert.Equal(t, resilience.CircuitClosed, cb.State())
	assert.Equal(t, "example.com", cb.Name())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newBreaker(resilience.Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail, nil), errFetch)
		assert.Equal(t, resilience.CircuitClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(context.Background(), fail, nil), errFetch)

	assert.Equal(t, resilience.CircuitOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newBreaker(resilience.Config{FailureThreshold: 2, OpenTimeout: time.Minute})

	_ = cb.Execute(context.Background(), fail, nil)
	require.NoError(t, cb.Execute(context.Background(), succeed, nil))
	_ = cb.Execute(context.Background(), fail, nil)

	assert.Equal(t, resilience.CircuitClosed, cb.State())
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb, _ := newBreaker(resilience.Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	_ = cb.Execute(context.Background(), fail, nil)

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	}, nil)

	assert.False(t, called)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	var open *resilience.OpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "example.com", open.Name)
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	cb, _ := newBreaker(resilience.Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	onlyTransport := func(err error) bool { return !errors.Is(err, errFetch) }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail, onlyTransport), errFetch)
	}

	assert.Equal(t, resilience.CircuitClosed, cb.State())
}

func TestCircuitBreaker_TransitionsToHalfOpen(t *testing.T) {
	cb, c := newBreaker(resilience.Config{FailureThreshold: 1, OpenTimeout: 50 * time.Millisecond})
	_ = cb.Execute(context.Background(), fail, nil)

	c.Advance(60 * time.Millisecond)

	assert.Equal(t, resilience.CircuitHalfOpen, cb.State())
}

func TestCircuitBreaker_ClosesAfterSuccessInHalfOpen(t *testing.T) {
	cb, c := newBreaker(resilience.Config{FailureThreshold: 1, OpenTimeout: time.Second})
	_ = cb.Execute(context.Background(), fail, nil)
	c.Advance(time.Second)

	require.NoError(t, cb.Execute(context.Background(), succeed, nil))

	assert.Equal(t, resilience.CircuitClosed, cb.State())
}

func TestCircuitBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	cb, c := newBreaker(resilience.Config{FailureThreshold: 3, OpenTimeout: time.Second})
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail, nil)
	}
	c.Advance(time.Second)

	_ = cb.Execute(context.Background(), fail, nil)

	assert.Equal(t, resilience.CircuitOpen, cb.State())
}

func TestCircuitBreaker_LimitsHalfOpenTrials(t *testing.T) {
	cb, c := newBreaker(resilience.Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second, MaxTrials: 1})
	_ = cb.Execute(context.Background(), fail, nil)
	c.Advance(time.Second)

	require.NoError(t, cb.Execute(context.Background(), succeed, nil))
	err := cb.Execute(context.Background(), succeed, nil)

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, resilience.CircuitHalfOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newBreaker(resilience.Config{FailureThreshold: 1, OpenTimeout: time.Minute})
	_ = cb.Execute(context.Background(), fail, nil)

	cb.Reset()

	assert.Equal(t, resilience.CircuitClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeed, nil))
}

func TestRegistry_OneBreakerPerKey(t *testing.T) {
	reg := resilience.NewRegistry(resilience.Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	_ = reg.Get("a.example").Execute(context.Background(), fail, nil)

	assert.Same(t, reg.Get("a.example"), reg.Get("a.example"))
	assert.Equal(t, resilience.CircuitOpen, reg.Get("a.example").State())
	assert.Equal(t, resilience.CircuitClosed, reg.Get("b.example").State())

	snaps := reg.Snapshots()
	assert.Len(t, snaps, 2)
	for _, s := range snaps {
		if s.Name == "a.example" {
			assert.Equal(t, 1, s.Failures)
			assert.Equal(t, "open", s.State.String())
		}
	}
}
