package mock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quayside/commerce/services/payment/internal/provider"
)

// Provider is a mock payment provider for development and testing. Outcomes
// are deterministic on the amount so failure paths can be exercised without
// a real provider: amounts ending in 99 minor units are declined.
type Provider struct {
	delay time.Duration
}

// NewProvider creates a new mock payment provider.
func NewProvider() *Provider {
	return &Provider{delay: 50 * time.Millisecond}
}

// NewInstantProvider creates a mock provider without the simulated
// processing delay, for tests.
func NewInstantProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mock"
}

// Charge simulates a payment charge.
func (p *Provider) Charge(ctx context.Context, input *provider.ChargeInput) (*provider.ChargeResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	if input.Amount%100 == 99 {
		return &provider.ChargeResult{
			Status:        provider.ResultFailed,
			FailureReason: "card declined",
			CanRetry:      true,
		}, nil
	}

	return &provider.ChargeResult{
		ProviderPaymentID: "mock_pay_" + uuid.New().String(),
		Status:            provider.ResultSucceeded,
	}, nil
}

// Refund simulates a payment refund.
func (p *Provider) Refund(ctx context.Context, input *provider.RefundInput) (*provider.RefundResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	if input.Amount%100 == 99 {
		return &provider.RefundResult{
			Status:        provider.ResultFailed,
			FailureReason: "refund rejected by issuer",
		}, nil
	}

	return &provider.RefundResult{
		ProviderRefundID: "mock_ref_" + uuid.New().String(),
		Status:           provider.ResultSucceeded,
	}, nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
		return nil
	}
}
