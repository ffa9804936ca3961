package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError names the guarded target that was rejected.
type OpenError struct {
	Name  string
	Until time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is open until %s", e.Name, e.Until.Format(time.RFC3339))
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures before the circuit opens
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close the circuit from half-open
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before letting a trial request through
	OpenTimeout time.Duration
	// MaxTrials is the max number of calls allowed through while half-open
	MaxTrials int
}

// DefaultConfig returns the thresholds used for remote fetches.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
		MaxTrials:        1,
	}
}

func (c Config) normalized() Config {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 1
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = 1
	}
	if c.MaxTrials < 1 {
		c.MaxTrials = 1
	}
	return c
}

// CircuitBreaker stops calling a target that keeps failing.
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	trials    int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker for the named target.
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.normalized(),
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// Name returns the guarded target.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState promotes an expired open circuit to half-open (must hold lock)
func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.OpenTimeout {
		cb.state = CircuitHalfOpen
		cb.trials = 0
		cb.successes = 0
	}
	return cb.state
}

// Execute runs fn unless the circuit is open. Only errors for which
// countable returns true move the breaker toward open; a nil countable
// counts every error.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error, countable func(error) bool) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)

	failed := err != nil && (countable == nil || countable(err))
	cb.afterRequest(failed)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case CircuitOpen:
		return &OpenError{Name: cb.name, Until: cb.openedAt.Add(cb.config.OpenTimeout)}
	case CircuitHalfOpen:
		if cb.trials >= cb.config.MaxTrials {
			return &OpenError{Name: cb.name, Until: cb.now()}
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState()
	if failed {
		cb.failures++
		cb.successes = 0
		if state == CircuitHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.trip()
		}
		return
	}

	switch state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
			cb.trials = 0
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	cb.trials = 0
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.trials = 0
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name     string
	State    CircuitState
	Failures int
	OpenedAt time.Time
}

// Snapshot returns the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:     cb.name,
		State:    cb.currentState(),
		Failures: cb.failures,
		OpenedAt: cb.openedAt,
	}
}

// Registry lazily creates one breaker per key (a host name for fetches).
type Registry struct {
	config   Config
	now      func() time.Time
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers share config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config.normalized(),
		now:      time.Now,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// WithClock replaces the time source of the registry and every breaker it
// creates afterwards.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Get returns the breaker for key, creating it if needed.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	cb := NewCircuitBreaker(key, r.config)
	cb.now = r.now
	r.breakers[key] = cb
	return cb
}

// Snapshots returns a view of every breaker created so far.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Snapshot())
	}
	return out
}
