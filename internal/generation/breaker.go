package generation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a Breaker is rejecting calls.
var ErrCircuitOpen = errors.New("generation: circuit breaker is open")

// BreakerState is the operating mode of a Breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero fields take defaults.
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration
	// HalfOpenMax probe calls must succeed to close again. Default: 1.
	HalfOpenMax int
}

// Breaker wraps a Generator with a closed, open and half-open circuit.
// Cancelled requests do not count as failures.
type Breaker struct {
	next         Generator
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewBreaker wraps next.
func NewBreaker(next Generator, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{
		next:         next,
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
	}
}

// State returns the current state without transitioning.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Generate implements Generator.
func (b *Breaker) Generate(ctx context.Context, req Request) (string, error) {
	probe, err := b.admit()
	if err != nil {
		return "", err
	}

	out, err := b.next.Generate(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.recordSuccess(probe)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if probe {
			b.halfOpenCalls--
		}
	default:
		b.recordFailure(probe)
	}
	return out, err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
		slog.Info("circuit breaker half-open", "name", b.name)
	case StateHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if b.state == StateHalfOpen {
		b.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(probe bool) {
	b.lastFailure = b.now()
	if probe {
		b.state = StateOpen
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.consecutiveFail++
	if b.state == StateClosed && b.consecutiveFail >= b.maxFailures {
		b.state = StateOpen
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.consecutiveFail)
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(probe bool) {
	if probe {
		b.halfOpenOK++
		if b.halfOpenOK >= b.halfOpenMax {
			b.state = StateClosed
			b.consecutiveFail = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.consecutiveFail = 0
}
