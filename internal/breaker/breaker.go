// Package breaker implements a circuit breaker guarding one answer backend.
//
// Each backend gets its own breaker so a flapping cloud API cannot poison
// the local model's availability judgment (and vice versa). The breaker is
// driven manually: the gateway records each dispatch outcome itself rather
// than wrapping calls, which keeps race-mode bookkeeping and fallback
// decisions in one place.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the health state of the guarded backend.
type State int

const (
	// Closed is normal operation; requests flow through.
	Closed State = iota

	// Open rejects requests until the recovery timeout elapses.
	Open

	// HalfOpen admits probe requests to test whether the backend recovered.
	HalfOpen
)

// String returns the lowercase state name used in logs and stats payloads.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker instance.
type Config struct {
	// Enabled set to false turns the breaker into a pass-through:
	// Allow always returns true and the record methods do nothing.
	Enabled bool

	// FailureThreshold is the number of consecutive failures in Closed
	// that trips the breaker to Open.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays Open before admitting
	// a probe request.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes in HalfOpen
	// needed to close the breaker again.
	SuccessThreshold int
}

// DefaultConfig returns the cloud-side defaults. The local backend
// typically runs with a lower failure threshold since a failing local
// model usually means the process is down, not a transient blip.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Stats is a point-in-time snapshot of one breaker.
type Stats struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	TotalTrips   uint64    `json:"total_trips"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
}

// Breaker is a Closed/Open/HalfOpen state machine for one backend.
type Breaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
	totalTrips   uint64
}

// New creates a breaker in the Closed state.
func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: Closed,
	}
}

// Allow reports whether a request may be sent to the backend right now.
// In Open, once the recovery timeout has elapsed the breaker moves to
// HalfOpen and the request is admitted as a probe. Concurrent probes are
// not serialized further; the caller's own concurrency is the bound.
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.transitionTo(HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. In Closed it clears the failure
// streak; in HalfOpen it counts toward closing the breaker.
func (b *Breaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionTo(Closed)
		}
	}
}

// RecordFailure notes a failed call (errors and timeouts alike). In Closed
// it trips the breaker at the failure threshold; in HalfOpen any failure
// reopens immediately with no partial credit.
func (b *Breaker) RecordFailure() {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionTo(Open)
		}
	case HalfOpen:
		b.transitionTo(Open)
	}
}

// Reset forces the breaker back to Closed and zeroes the streak counters.
// Meant for manual operator recovery; the trip counter is preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.openedAt = time.Time{}
	slog.Info("circuit breaker reset", "breaker", b.name)
}

// State returns the current state without transitioning. An Open breaker
// whose recovery timeout has passed still reports Open until the next
// Allow call admits the probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot for the statistics surface.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		TotalTrips:   b.totalTrips,
		OpenedAt:     b.openedAt,
	}
}

// transitionTo moves the state machine. Caller must hold b.mu.
func (b *Breaker) transitionTo(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next

	switch next {
	case Open:
		b.openedAt = time.Now()
		b.totalTrips++
		b.successCount = 0
		slog.Warn("circuit breaker opened",
			"breaker", b.name,
			"failures", b.failureCount,
			"total_trips", b.totalTrips)
	case HalfOpen:
		b.successCount = 0
		slog.Info("circuit breaker half-open, probing", "breaker", b.name)
	case Closed:
		b.failureCount = 0
		b.successCount = 0
		slog.Info("circuit breaker closed", "breaker", b.name, "recovered_from", prev.String())
	}
}
