package api

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // Normal operation, requests pass through
	StateOpen     CircuitState = "open"      // Circuit is open, requests fail fast
	StateHalfOpen CircuitState = "half-open" // Testing if the server recovered
)

// CircuitBreaker fails fast against an API host that keeps failing at the
// transport level or with 5xx answers. Client errors (4xx) never trip it.
type CircuitBreaker struct {
	mu                sync.Mutex
	circuits          map[string]*circuit
	threshold         int           // Consecutive failures before opening
	cooldown          time.Duration // How long to stay open before probing
	halfOpenSuccesses int           // Successes needed to close from half-open
	now               func() time.Time
}

type circuit struct {
	state             CircuitState
	failures          int
	successes         int
	lastFailureTime   time.Time
	lastStateChange   time.Time
	halfOpenSuccesses int
}

// NewCircuitBreaker creates a breaker; zero values fall back to 5 failures
// and a 60s cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		circuits:          make(map[string]*circuit),
		threshold:         threshold,
		cooldown:          cooldown,
		halfOpenSuccesses: 1,
		now:               time.Now,
	}
}

// IsOpen checks if requests to host should fail fast. An open circuit whose
// cooldown elapsed moves to half-open and lets the request through.
func (cb *CircuitBreaker) IsOpen(host string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, exists := cb.circuits[host]
	if !exists {
		return false
	}

	if c.state == StateOpen {
		if cb.now().Sub(c.lastStateChange) >= cb.cooldown {
			c.state = StateHalfOpen
			c.halfOpenSuccesses = 0
			c.lastStateChange = cb.now()
			return false
		}
		return true
	}

	return false
}

// RecordSuccess records a request that got a non-5xx answer
func (cb *CircuitBreaker) RecordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, exists := cb.circuits[host]
	if !exists {
		return
	}

	c.successes++
	c.failures = 0

	switch c.state {
	case StateHalfOpen:
		c.halfOpenSuccesses++
		if c.halfOpenSuccesses >= cb.halfOpenSuccesses {
			c.state = StateClosed
			c.lastStateChange = cb.now()
			c.halfOpenSuccesses = 0
		}
	case StateOpen:
		c.state = StateClosed
		c.lastStateChange = cb.now()
	}
}

// RecordFailure records a transport failure or 5xx answer
func (cb *CircuitBreaker) RecordFailure(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, exists := cb.circuits[host]
	if !exists {
		c = &circuit{
			state:           StateClosed,
			lastStateChange: cb.now(),
		}
		cb.circuits[host] = c
	}

	c.failures++
	c.lastFailureTime = cb.now()

	switch c.state {
	case StateClosed:
		if c.failures >= cb.threshold {
			c.state = StateOpen
			c.lastStateChange = cb.now()
		}
	case StateHalfOpen:
		c.state = StateOpen
		c.lastStateChange = cb.now()
		c.halfOpenSuccesses = 0
	}
}

// GetStats returns statistics for a circuit
func (cb *CircuitBreaker) GetStats(host string) CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, exists := cb.circuits[host]
	if !exists {
		return CircuitStats{State: StateClosed}
	}

	return CircuitStats{
		State:           c.state,
		Failures:        c.failures,
		Successes:       c.successes,
		LastFailure:     c.lastFailureTime,
		LastStateChange: c.lastStateChange,
	}
}

// Reset forgets everything known about host
func (cb *CircuitBreaker) Reset(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	delete(cb.circuits, host)
}

// CircuitStats holds statistics about a circuit
type CircuitStats struct {
	State           CircuitState
	Failures        int
	Successes       int
	LastFailure     time.Time
	LastStateChange time.Time
}

// CircuitOpenError is the cause attached when a request was not attempted
type CircuitOpenError struct {
	Host  string
	Stats CircuitStats
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s (failures: %d, state: %s)",
		e.Host, e.Stats.Failures, e.Stats.State)
}
