package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, 30*time.Second)
	cb.now = func() time.Time { return now }

	const host = "api.example.com"
	assert.False(t, cb.IsOpen(host))

	cb.RecordFailure(host)
	cb.RecordFailure(host)
	assert.False(t, cb.IsOpen(host))
	cb.RecordFailure(host)
	assert.True(t, cb.IsOpen(host))
	assert.Equal(t, StateOpen, cb.GetStats(host).State)

	now = now.Add(31 * time.Second)
	assert.False(t, cb.IsOpen(host), "cooldown elapsed, trial request allowed")
	assert.Equal(t, StateHalfOpen, cb.GetStats(host).State)

	// A failed trial request reopens immediately
	cb.RecordFailure(host)
	assert.True(t, cb.IsOpen(host))

	now = now.Add(31 * time.Second)
	assert.False(t, cb.IsOpen(host))
	cb.RecordSuccess(host)
	assert.Equal(t, StateClosed, cb.GetStats(host).State)
	assert.Equal(t, 0, cb.GetStats(host).Failures)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	cb.RecordFailure("h")
	cb.RecordSuccess("h")
	cb.RecordFailure("h")
	assert.False(t, cb.IsOpen("h"))

	cb.Reset("h")
	assert.Equal(t, CircuitStats{State: StateClosed}, cb.GetStats("h"))
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, 60*time.Second, cb.cooldown)
}
