package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker guarding provider calls.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig returns sensible defaults for the provider breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker. Transport errors
// trip the breaker; declines reported in the result do not, since they are
// valid provider answers.
type BreakerProvider struct {
	inner  Provider
	charge *gobreaker.CircuitBreaker[*ChargeResult]
	refund *gobreaker.CircuitBreaker[*RefundResult]
	logger *slog.Logger
}

// NewBreakerProvider wraps prov with a circuit breaker.
func NewBreakerProvider(prov Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("payment provider breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerProvider{
		inner:  prov,
		charge: gobreaker.NewCircuitBreaker[*ChargeResult](settings),
		refund: gobreaker.NewCircuitBreaker[*RefundResult](settings),
		logger: logger,
	}
}

// Name returns the wrapped provider's name.
func (b *BreakerProvider) Name() string {
	return b.inner.Name()
}

// Charge executes a charge through the circuit breaker.
func (b *BreakerProvider) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	return b.charge.Execute(func() (*ChargeResult, error) {
		return b.inner.Charge(ctx, input)
	})
}

// Refund executes a refund through the circuit breaker.
func (b *BreakerProvider) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	return b.refund.Execute(func() (*RefundResult, error) {
		return b.inner.Refund(ctx, input)
	})
}
