package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen matches, via errors.Is, every error returned for a rejected call.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes a circuit breaker.
type Config struct {
	// MaxFailures consecutive failures open the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before letting probes through.
	Timeout time.Duration
	// HalfOpenMaxCalls successful probes close the circuit again.
	HalfOpenMaxCalls uint32
	// IsFailure decides which errors count against the circuit. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released after each transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker guards calls to an external dependency. After MaxFailures
// consecutive failures it rejects calls for Timeout, then lets a limited
// number of probe calls through before closing again.
type CircuitBreaker struct {
	name   string
	config Config

	mu              sync.Mutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint32

	logger *logrus.Logger
	now    func() time.Time
}

// New creates a circuit breaker. Zero config values get defaults.
func New(name string, config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls == 0 {
		config.HalfOpenMaxCalls = 3
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		logger: logger,
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute executes the given function if the circuit breaker is in a state that allows it
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && cb.countsAsFailure(err) {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if cb.config.IsFailure == nil {
		return true
	}
	return cb.config.IsFailure(err)
}

// allowRequest admits a call, moving an expired open circuit to half-open.
func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.requestCount++
	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.config.Timeout {
			return &CircuitBreakerError{Name: cb.name, State: StateOpen}
		}
		transition = cb.setState(StateHalfOpen)
		cb.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.halfOpenCalls++
		return nil
	default:
		return &CircuitBreakerError{Name: cb.name, State: cb.state}
	}
}

// onSuccess handles successful requests
func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.successCount++
	switch cb.state {
	case StateHalfOpen:
		if cb.successCount >= cb.config.HalfOpenMaxCalls {
			transition = cb.setState(StateClosed)
			cb.failures = 0
			cb.halfOpenCalls = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// onFailure handles failed requests
func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	var transition func()
	defer func() {
		cb.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			transition = cb.setState(StateOpen)
		}
	case StateHalfOpen:
		transition = cb.setState(StateOpen)
	}
}

// setState must be called with the lock held. It returns the notification to
// run once the lock is released.
func (cb *CircuitBreaker) setState(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	if to == StateHalfOpen || to == StateClosed {
		cb.successCount = 0
	}

	fields := logrus.Fields{
		"circuit_breaker": cb.name,
		"from":            from.String(),
		"state":           to.String(),
		"failures":        cb.failures,
	}
	notify := cb.config.OnStateChange
	return func() {
		if to == StateOpen {
			cb.logger.WithFields(fields).Warn("Circuit breaker opened due to failures")
		} else {
			cb.logger.WithFields(fields).Info("Circuit breaker state changed")
		}
		if notify != nil {
			notify(cb.name, from, to)
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	transition := cb.setState(StateClosed)
	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.successCount = 0
	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		Successes:       cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        uint32    `json:"failures"`
	Requests        uint32    `json:"requests"`
	Successes       uint32    `json:"successes"`
	LastFailureTime time.Time `json:"lastFailureTime"`
}

// CircuitBreakerError is returned when a call is rejected.
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

func (e *CircuitBreakerError) Is(target error) bool {
	return target == ErrOpen
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
