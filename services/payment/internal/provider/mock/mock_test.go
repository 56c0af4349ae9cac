package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/commerce/services/payment/internal/provider"
)

func TestCharge_Succeeds(t *testing.T) {
	p := NewInstantProvider()

	result, err := p.Charge(context.Background(), &provider.ChargeInput{
		Amount:   5000,
		Currency: "USD",
		Method:   "credit_card",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ResultSucceeded, result.Status)
	assert.NotEmpty(t, result.ProviderPaymentID)
}

func TestCharge_DeclinesAmountsEndingIn99(t *testing.T) {
	p := NewInstantProvider()

	result, err := p.Charge(context.Background(), &provider.ChargeInput{
		Amount:   1099,
		Currency: "USD",
		Method:   "credit_card",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ResultFailed, result.Status)
	assert.Equal(t, "card declined", result.FailureReason)
	assert.True(t, result.CanRetry)
}

func TestRefund_Succeeds(t *testing.T) {
	p := NewInstantProvider()

	result, err := p.Refund(context.Background(), &provider.RefundInput{
		ProviderPaymentID: "mock_pay_123",
		Amount:            2500,
		Currency:          "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ResultSucceeded, result.Status)
	assert.NotEmpty(t, result.ProviderRefundID)
}

func TestRefund_DeclinesAmountsEndingIn99(t *testing.T) {
	p := NewInstantProvider()

	result, err := p.Refund(context.Background(), &provider.RefundInput{
		ProviderPaymentID: "mock_pay_123",
		Amount:            199,
		Currency:          "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ResultFailed, result.Status)
}

func TestCharge_CanceledContext(t *testing.T) {
	p := NewProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Charge(ctx, &provider.ChargeInput{Amount: 5000, Currency: "USD"})
	assert.ErrorIs(t, err, context.Canceled)
}
