package resilience

import (
	"context"

	"github.com/parrotlabs/parrot/pkg/sim"
)

// TimingSink wraps a persistent timing sink with a [CircuitBreaker]. While
// the breaker is open, Append drops records with [ErrCircuitOpen] instead of
// hammering a store that is already failing. The in-memory timing window on
// the session is unaffected.
type TimingSink struct {
	next    sim.TimingSink
	breaker *CircuitBreaker
}

var _ sim.TimingSink = (*TimingSink)(nil)

// NewTimingSink guards next with a breaker built from cfg. A zero cfg uses
// the breaker defaults; the name defaults to "timing-sink".
func NewTimingSink(next sim.TimingSink, cfg CircuitBreakerConfig) *TimingSink {
	if cfg.Name == "" {
		cfg.Name = "timing-sink"
	}
	return &TimingSink{
		next:    next,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Append forwards the record unless the breaker is open.
func (s *TimingSink) Append(ctx context.Context, t sim.ResponseTiming) error {
	return s.breaker.Execute(func() error {
		return s.next.Append(ctx, t)
	})
}

// State exposes the breaker state, e.g. for a readiness check.
func (s *TimingSink) State() State {
	return s.breaker.State()
}
