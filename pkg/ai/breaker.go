package ai

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

var breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gema",
	Subsystem: "ai",
	Name:      "circuit_breaker_state",
	Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
}, []string{"name"})

// BreakerSettings tunes when the explainer circuit opens.
type BreakerSettings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings opens after a 60% failure rate over at least 10 calls.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:         "explainer",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// CircuitBreakerExplainer stops calling a failing explainer until it recovers.
type CircuitBreakerExplainer struct {
	inner  Explainer
	cb     *gobreaker.CircuitBreaker[string]
	logger zerolog.Logger
}

// NewCircuitBreakerExplainer wraps inner with a circuit breaker.
func NewCircuitBreakerExplainer(inner Explainer, settings BreakerSettings, logger zerolog.Logger) *CircuitBreakerExplainer {
	logger = logger.With().Str("component", "explainer_breaker").Logger()
	breakerState.WithLabelValues(settings.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
		// a caller giving up is not a provider failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerExplainer{inner: inner, cb: cb, logger: logger}
}

// Explain delegates to the wrapped explainer unless the circuit is open.
func (b *CircuitBreakerExplainer) Explain(ctx context.Context, input ExplanationInput) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.inner.Explain(ctx, input)
	})
}

// State reports the current breaker state.
func (b *CircuitBreakerExplainer) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
