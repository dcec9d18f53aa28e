// Package resilience provides a circuit breaker used to protect webhook
// delivery from a failing or slow receiver (spec §4.6).
package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed - normal operation, requests pass through
	StateClosed CircuitBreakerState = iota
	// StateOpen - circuit is open, requests fail fast
	StateOpen
	// StateHalfOpen - testing if the service has recovered
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
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

// CircuitBreaker provides protection against cascading failures
type CircuitBreaker struct {
	mu     sync.RWMutex
	logger *zap.Logger
	name   string

	// Configuration
	maxFailures     int64
	timeout         time.Duration
	resetTimeout    time.Duration
	halfOpenMaxReqs int64

	// State
	state           CircuitBreakerState
	failures        int64
	requests        int64
	successes       int64
	lastFailureTime time.Time
	lastStateChange time.Time

	// Half-open state tracking
	halfOpenReqs int64
	halfOpenSucc int64

	// Callbacks
	onStateChange func(name string, from, to CircuitBreakerState)
	onFailure     func(name string, err error)
}

// CircuitBreakerConfig contains configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name            string
	MaxFailures     int64
	Timeout         time.Duration
	ResetTimeout    time.Duration
	HalfOpenMaxReqs int64
	OnStateChange   func(name string, from, to CircuitBreakerState)
	OnFailure       func(name string, err error)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		logger:          logger,
		name:            config.Name,
		maxFailures:     config.MaxFailures,
		timeout:         config.Timeout,
		resetTimeout:    config.ResetTimeout,
		halfOpenMaxReqs: config.HalfOpenMaxReqs,
		state:           StateClosed,
		lastStateChange: time.Now(),
		onStateChange:   config.OnStateChange,
		onFailure:       config.OnFailure,
	}

	// Set defaults
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.timeout <= 0 {
		cb.timeout = 60 * time.Second
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 60 * time.Second
	}
	if cb.halfOpenMaxReqs <= 0 {
		cb.halfOpenMaxReqs = 3
	}

	logger.Info("circuit breaker created",
		zap.String("name", cb.name),
		zap.Int64("max_failures", cb.maxFailures),
		zap.Duration("timeout", cb.timeout))

	return cb
}

// Execute runs the given function with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return fmt.Errorf("circuit breaker %s is open", cb.name)
	}

	err := fn()
	if err != nil {
		cb.onRequestFailure(err)
		return err
	}

	cb.onRequestSuccess()
	return nil
}

// ExecuteWithContext runs the given function with circuit breaker protection and context
func (cb *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return fmt.Errorf("circuit breaker %s is open", cb.name)
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- fn(ctx)
	}()

	select {
	case err := <-resultCh:
		if err != nil {
			cb.onRequestFailure(err)
			return err
		}
		cb.onRequestSuccess()
		return nil
	case <-ctx.Done():
		cb.onRequestFailure(ctx.Err())
		return ctx.Err()
	case <-time.After(cb.timeout):
		err := fmt.Errorf("circuit breaker %s timeout", cb.name)
		cb.onRequestFailure(err)
		return err
	}
}

// GetState returns the current circuit breaker state
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requests,
		Successes:       cb.successes,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
		FailureRate:     cb.calculateFailureRate(),
	}
}

// CircuitBreakerStats contains statistics about circuit breaker
type CircuitBreakerStats struct {
	Name            string              `json:"name"`
	State           CircuitBreakerState `json:"state"`
	Failures        int64               `json:"failures"`
	Requests        int64               `json:"requests"`
	Successes       int64               `json:"successes"`
	LastFailureTime time.Time           `json:"last_failure_time"`
	LastStateChange time.Time           `json:"last_state_change"`
	FailureRate     float64             `json:"failure_rate"`
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.requests = 0
	cb.successes = 0
	cb.halfOpenReqs = 0
	cb.halfOpenSucc = 0
	cb.lastStateChange = time.Now()

	cb.logger.Info("circuit breaker reset",
		zap.String("name", cb.name),
		zap.String("from_state", oldState.String()))

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, oldState, cb.state)
	}
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.lastStateChange) >= cb.resetTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 0
			cb.halfOpenSucc = 0
			return true
		}
		return false
	case StateHalfOpen:
		return cb.halfOpenReqs < cb.halfOpenMaxReqs
	default:
		return false
	}
}

func (cb *CircuitBreaker) onRequestSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	atomic.AddInt64(&cb.requests, 1)
	atomic.AddInt64(&cb.successes, 1)

	if cb.state == StateHalfOpen {
		cb.halfOpenReqs++
		cb.halfOpenSucc++

		if cb.halfOpenSucc >= cb.halfOpenMaxReqs {
			cb.setState(StateClosed)
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) onRequestFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	atomic.AddInt64(&cb.requests, 1)
	atomic.AddInt64(&cb.failures, 1)
	cb.lastFailureTime = time.Now()

	if cb.onFailure != nil {
		cb.onFailure(cb.name, err)
	}

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenReqs++
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()))

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, oldState, newState)
	}
}

func (cb *CircuitBreaker) calculateFailureRate() float64 {
	if cb.requests == 0 {
		return 0.0
	}
	return float64(cb.failures) / float64(cb.requests)
}

// CircuitBreakerManager manages one circuit breaker per name; the webhook
// dispatcher uses the target path as the name.
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(logger *zap.Logger) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	config.Name = name
	cb := NewCircuitBreaker(config, cbm.logger)
	cbm.breakers[name] = cb

	return cb
}

// Get retrieves a circuit breaker by name
func (cbm *CircuitBreakerManager) Get(name string) (*CircuitBreaker, bool) {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	cb, exists := cbm.breakers[name]
	return cb, exists
}

// GetAllStats returns statistics for all circuit breakers
func (cbm *CircuitBreakerManager) GetAllStats() map[string]CircuitBreakerStats {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats)
	for name, cb := range cbm.breakers {
		stats[name] = cb.GetStats()
	}

	return stats
}

// ResetAll resets all circuit breakers
func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.RLock()
	defer cbm.mu.RUnlock()

	for _, cb := range cbm.breakers {
		cb.Reset()
	}

	cbm.logger.Info("all circuit breakers reset")
}
