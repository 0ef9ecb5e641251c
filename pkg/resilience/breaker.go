package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"friendclub-backend/pkg/logger"
)

// State represents the state of the circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// ErrOpen is returned without calling the operation while the breaker is open
var ErrOpen = errors.New("circuit breaker open")

// Breaker fails calls fast after repeated failures of a backing store.
// After the cooldown one trial call is let through; its outcome closes or
// re-opens the circuit.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialRunning        bool

	metrics *breakerMetrics
}

type breakerMetrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	state         prometheus.Gauge
}

// NewBreaker creates a breaker that opens after threshold consecutive failures.
// Metrics are registered on reg when non-nil.
func NewBreaker(name string, threshold int, cooldown time.Duration, reg prometheus.Registerer) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     StateClosed,
	}
	if reg != nil {
		labels := prometheus.Labels{"breaker": name}
		b.metrics = &breakerMetrics{
			requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name:        "circuit_breaker_requests_total",
				Help:        "Total number of guarded operations by outcome",
				ConstLabels: labels,
			}, []string{"operation", "status"}),
			errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name:        "circuit_breaker_errors_total",
				Help:        "Total number of failed guarded operations by error type",
				ConstLabels: labels,
			}, []string{"operation", "error_type"}),
			state: prometheus.NewGauge(prometheus.GaugeOpts{
				Name:        "circuit_breaker_state",
				Help:        "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			}),
		}
		reg.MustRegister(b.metrics.requestsTotal, b.metrics.errorsTotal, b.metrics.state)
	}
	return b
}

// Execute runs fn unless the circuit is open
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if !b.allow() {
		b.record(operation, "circuit_breaker_open")
		return ErrOpen
	}

	err := fn(ctx)
	b.done(operation, err)
	return err
}

// State returns the current circuit state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.trialRunning = true
		logger.Warn("Circuit breaker HALF-OPEN - allowing trial call", zap.String("breaker", b.name))
		return true
	case StateHalfOpen:
		// One trial call at a time
		if b.trialRunning {
			return false
		}
		b.trialRunning = true
		return true
	default:
		return true
	}
}

func (b *Breaker) done(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialRunning = false

	if err == nil {
		if b.state != StateClosed {
			logger.Info("Circuit breaker CLOSED - store recovered", zap.String("breaker", b.name))
		}
		b.consecutiveFailures = 0
		b.setState(StateClosed)
		b.record(operation, "success")
		return
	}

	b.consecutiveFailures++
	b.record(operation, "failure")
	if b.metrics != nil {
		b.metrics.errorsTotal.WithLabelValues(operation, classifyError(err)).Inc()
	}

	if b.state == StateHalfOpen || b.consecutiveFailures >= b.threshold {
		if b.state != StateOpen {
			logger.Error("Circuit breaker OPEN - too many consecutive failures",
				zap.String("breaker", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Error(err))
		}
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s State) {
	b.state = s
	if b.metrics == nil {
		return
	}
	switch s {
	case StateClosed:
		b.metrics.state.Set(0)
	case StateHalfOpen:
		b.metrics.state.Set(1)
	case StateOpen:
		b.metrics.state.Set(2)
	}
}

func (b *Breaker) record(operation, status string) {
	if b.metrics != nil {
		b.metrics.requestsTotal.WithLabelValues(operation, status).Inc()
	}
}

// classifyError classifies errors for metrics
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	default:
		return "unknown"
	}
}
