package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidPaymentStatus(t *testing.T) {
	for _, s := range ValidPaymentStatuses() {
		assert.True(t, IsValidPaymentStatus(s), s)
	}
	assert.False(t, IsValidPaymentStatus("declined"))
	assert.False(t, IsValidPaymentStatus(""))
}

func TestIsValidPaymentMethod(t *testing.T) {
	for _, m := range ValidPaymentMethods() {
		assert.True(t, IsValidPaymentMethod(m), m)
	}
	assert.False(t, IsValidPaymentMethod("cash"))
}

func TestCaptureableStatuses(t *testing.T) {
	assert.ElementsMatch(t, []string{PaymentStatusPending, PaymentStatusAuthorized}, CaptureableStatuses())
}

func TestRefundableStatuses_ExcludesRefunding(t *testing.T) {
	assert.NotContains(t, RefundableStatuses(), PaymentStatusRefunding)
	assert.Contains(t, RefundableStatuses(), PaymentStatusCompleted)
	assert.Contains(t, RefundableStatuses(), PaymentStatusPartiallyRefunded)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(PaymentStatusFailed))
	assert.True(t, IsTerminal(PaymentStatusCancelled))
	assert.True(t, IsTerminal(PaymentStatusRefunded))
	assert.False(t, IsTerminal(PaymentStatusPending))
	assert.False(t, IsTerminal(PaymentStatusRefunding))
	assert.False(t, IsTerminal(PaymentStatusPartiallyRefunded))
}

func TestIsValidRefundStatus(t *testing.T) {
	for _, s := range ValidRefundStatuses() {
		assert.True(t, IsValidRefundStatus(s), s)
	}
	assert.False(t, IsValidRefundStatus("processing"))
}
