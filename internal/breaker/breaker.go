// Package breaker implements a per-action circuit breaker.
//
// Each action name gets its own circuit with three states:
//
//   - Closed: normal operation, failures inside the sliding window are counted
//   - Open: too many failures, every call is rejected until the cooldown elapses
//   - Half-Open: exactly one trial call is let through
//
// State transitions:
//   - Closed -> Open: FailureThreshold failures within Window
//   - Open -> Half-Open: after Cooldown
//   - Half-Open -> Closed: the trial call succeeds
//   - Half-Open -> Open: the trial call fails
//
// Circuits live for the lifetime of the process and are shared by every
// execution. All methods are safe for concurrent use.
package breaker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/taskflow/pkg/types"
)

// State represents the current state of a circuit.
type State int

const (
	// StateClosed means calls are allowed.
	StateClosed State = iota
	// StateOpen means calls are rejected.
	StateOpen
	// StateHalfOpen means a single trial call is allowed.
	StateHalfOpen
)

// String returns a human-readable representation of the state.
func (s State) String() string {
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

// MarshalText lets snapshots serialise the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds circuit breaker thresholds.
type Config struct {
	// FailureThreshold is the number of failures inside Window that opens the circuit.
	FailureThreshold int
	// Window is the sliding window in which failures are counted.
	Window time.Duration
	// Cooldown is how long the circuit stays open before allowing a trial call.
	Cooldown time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
	}
}

// circuit tracks the state of a single action.
type circuit struct {
	state State

	// failures holds the timestamps of failures inside the window (Closed only)
	failures []time.Time

	openedAt      time.Time
	trialInFlight bool
	lastFailure   time.Time
	totalFailures int64
	totalRejected int64
}

// CircuitBreaker manages one circuit per action name.
type CircuitBreaker struct {
	config   Config
	clock    clockwork.Clock
	logger   *zap.Logger
	mu       sync.Mutex
	circuits map[string]*circuit
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock injects the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(cb *CircuitBreaker) {
		cb.clock = clock
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *zap.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// New creates a circuit breaker. Zero config fields fall back to DefaultConfig.
func New(config Config, opts ...Option) *CircuitBreaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}

	cb := &CircuitBreaker{
		config:   config,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		circuits: make(map[string]*circuit),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Config returns the breaker configuration.
func (cb *CircuitBreaker) Config() Config {
	return cb.config
}

// Allow 在调用动作之前检查熔断器。
// 返回 nil 表示可以调用；熔断打开或半开试探名额已被占用时返回 *CircuitOpenError。
// 拿到半开试探名额的调用方必须随后调用 RecordSuccess、RecordFailure 或 Release。
func (cb *CircuitBreaker) Allow(action string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(action)
	now := cb.clock.Now()

	switch c.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(c.openedAt) >= cb.config.Cooldown {
			c.state = StateHalfOpen
			c.trialInFlight = true
			cb.logger.Info("circuit half-open, allowing trial call", zap.String("action", action))
			return nil
		}
		c.totalRejected++
		return cb.openError(action, c)

	case StateHalfOpen:
		if !c.trialInFlight {
			c.trialInFlight = true
			return nil
		}
		c.totalRejected++
		return cb.openError(action, c)
	}
	return nil
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess(action string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(action)
	switch c.state {
	case StateClosed:
		c.failures = c.failures[:0]
	case StateHalfOpen, StateOpen:
		c.state = StateClosed
		c.failures = c.failures[:0]
		c.trialInFlight = false
		cb.logger.Info("circuit closed", zap.String("action", action))
	}
}

// RecordFailure records a failed call and may open the circuit.
func (cb *CircuitBreaker) RecordFailure(action string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.getOrCreate(action)
	now := cb.clock.Now()
	c.lastFailure = now
	c.totalFailures++

	switch c.state {
	case StateClosed:
		c.failures = append(prune(c.failures, now.Add(-cb.config.Window)), now)
		if len(c.failures) >= cb.config.FailureThreshold {
			c.state = StateOpen
			c.openedAt = now
			c.failures = c.failures[:0]
			cb.logger.Warn("circuit opened",
				zap.String("action", action),
				zap.Int("threshold", cb.config.FailureThreshold),
				zap.Duration("cooldown", cb.config.Cooldown))
		}

	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = now
		c.trialInFlight = false
		cb.logger.Warn("trial call failed, circuit re-opened", zap.String("action", action))

	case StateOpen:
		// 已经打开，只记录时间
	}
}

// Release 归还半开状态下的试探名额，不计为成功或失败（例如调用被取消）。
func (cb *CircuitBreaker) Release(action string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[action]; ok && c.state == StateHalfOpen {
		c.trialInFlight = false
	}
}

// State returns the current state of the circuit for action.
// An open circuit whose cooldown has elapsed reports Half-Open.
func (cb *CircuitBreaker) State(action string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[action]
	if !ok {
		return StateClosed
	}
	return cb.effectiveState(c)
}

// Reset resets the circuit for action to Closed.
func (cb *CircuitBreaker) Reset(action string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[action]; ok {
		resetCircuit(c)
		cb.logger.Info("circuit reset", zap.String("action", action))
	}
}

// ResetAll resets every circuit to Closed.
func (cb *CircuitBreaker) ResetAll() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	for _, c := range cb.circuits {
		resetCircuit(c)
	}
}

// Snapshot 返回所有熔断器的只读快照，按动作名排序。
func (cb *CircuitBreaker) Snapshot() []CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()
	out := make([]CircuitStats, 0, len(cb.circuits))
	for action, c := range cb.circuits {
		out = append(out, CircuitStats{
			Action:         action,
			State:          cb.effectiveState(c),
			WindowFailures: len(prune(append([]time.Time(nil), c.failures...), now.Add(-cb.config.Window))),
			OpenedAt:       c.openedAt,
			LastFailure:    c.lastFailure,
			TotalFailures:  c.totalFailures,
			TotalRejected:  c.totalRejected,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// CircuitStats provides statistics about a single circuit.
type CircuitStats struct {
	Action         string    `json:"action"`
	State          State     `json:"state"`
	WindowFailures int       `json:"window_failures"`
	OpenedAt       time.Time `json:"opened_at,omitempty"`
	LastFailure    time.Time `json:"last_failure,omitempty"`
	TotalFailures  int64     `json:"total_failures"`
	TotalRejected  int64     `json:"total_rejected"`
}

// getOrCreate returns the circuit for action. Must be called with mu locked.
func (cb *CircuitBreaker) getOrCreate(action string) *circuit {
	c, ok := cb.circuits[action]
	if !ok {
		c = &circuit{state: StateClosed}
		cb.circuits[action] = c
	}
	return c
}

func (cb *CircuitBreaker) effectiveState(c *circuit) State {
	if c.state == StateOpen && cb.clock.Now().Sub(c.openedAt) >= cb.config.Cooldown {
		return StateHalfOpen
	}
	return c.state
}

func (cb *CircuitBreaker) openError(action string, c *circuit) *CircuitOpenError {
	return &CircuitOpenError{
		Action:     action,
		OpenedAt:   c.openedAt,
		RetryAfter: c.openedAt.Add(cb.config.Cooldown),
	}
}

func resetCircuit(c *circuit) {
	c.state = StateClosed
	c.failures = c.failures[:0]
	c.trialInFlight = false
	c.openedAt = time.Time{}
}

// prune drops timestamps older than cutoff. Timestamps are kept in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// CircuitOpenError is returned when a circuit rejects a call.
type CircuitOpenError struct {
	Action     string
	OpenedAt   time.Time
	RetryAfter time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for action %s (opened at %s, retry after %s)",
		e.Action, e.OpenedAt.Format(time.RFC3339), e.RetryAfter.Format(time.RFC3339))
}

// Kind implements types.KindedError.
func (e *CircuitOpenError) Kind() types.ErrorKind {
	return types.ErrKindCircuitOpen
}
