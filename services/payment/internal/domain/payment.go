package domain

import (
	"time"
)

// Payment status constants.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusAuthorized        = "authorized"
	PaymentStatusProcessing        = "processing"
	PaymentStatusCompleted         = "completed"
	PaymentStatusFailed            = "failed"
	PaymentStatusCancelled         = "cancelled"
	PaymentStatusRefunding         = "refunding"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
)

// Payment method constants.
const (
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodDebitCard    = "debit_card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodWallet       = "wallet"
)

// Payment represents a payment transaction. Amount is in minor currency
// units (cents).
type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Method        string    `json:"method"`
	ProviderName  string    `json:"provider_name"`
	ProviderPayID string    `json:"provider_payment_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusHistory is one append-only entry of the payment status trail.
type StatusHistory struct {
	ID             string    `json:"id"`
	PaymentID      string    `json:"payment_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidPaymentStatuses returns all valid payment statuses.
func ValidPaymentStatuses() []string {
	return []string{
		PaymentStatusPending,
		PaymentStatusAuthorized,
		PaymentStatusProcessing,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusRefunding,
		PaymentStatusPartiallyRefunded,
		PaymentStatusRefunded,
	}
}

// IsValidPaymentStatus checks whether the given status is a valid payment status.
func IsValidPaymentStatus(status string) bool {
	for _, s := range ValidPaymentStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ValidPaymentMethods returns all valid payment methods.
func ValidPaymentMethods() []string {
	return []string{
		PaymentMethodCreditCard,
		PaymentMethodDebitCard,
		PaymentMethodBankTransfer,
		PaymentMethodWallet,
	}
}

// IsValidPaymentMethod checks whether the given method is a valid payment method.
func IsValidPaymentMethod(method string) bool {
	for _, m := range ValidPaymentMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// CaptureableStatuses are the states a payment may be captured from. The
// processing state itself is excluded so only one capture holds the payment
// at a time.
func CaptureableStatuses() []string {
	return []string{PaymentStatusPending, PaymentStatusAuthorized}
}

// CancellableStatuses are the states a payment may be cancelled from.
func CancellableStatuses() []string {
	return []string{PaymentStatusPending, PaymentStatusAuthorized}
}

// RefundableStatuses are the states a refund may be started from. The
// refunding state itself is excluded so only one refund runs at a time.
func RefundableStatuses() []string {
	return []string{PaymentStatusCompleted, PaymentStatusPartiallyRefunded}
}

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status string) bool {
	switch status {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}
