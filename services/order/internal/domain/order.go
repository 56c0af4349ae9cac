package domain

import (
	"time"
)

// Order status constants.
const (
	OrderStatusPending       = "pending"
	OrderStatusPaid          = "paid"
	OrderStatusPaymentFailed = "payment_failed"
	OrderStatusProcessing    = "processing"
	OrderStatusShipped       = "shipped"
	OrderStatusDelivered     = "delivered"
	OrderStatusCancelled     = "cancelled"
	OrderStatusRefunded      = "refunded"
)

// Address is the shipping address snapshot stored with the order.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order represents a customer order. TotalAmount is in minor currency units.
type Order struct {
	ID              string      `json:"id"`
	OrderNumber     string      `json:"order_number"`
	UserID          string      `json:"user_id"`
	Status          string      `json:"status"`
	TotalAmount     int64       `json:"total_amount"`
	Currency        string      `json:"currency"`
	ShippingAddress Address     `json:"shipping_address"`
	PaymentID       string      `json:"payment_id,omitempty"`
	ReservationID   string      `json:"reservation_id"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	Items           []OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem is a line item with the product name and unit price captured at
// order time.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// Subtotal returns the line total for the item.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// StatusHistory is one append-only entry of the order status trail.
type StatusHistory struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// allowedTransitions maps each status to the statuses reachable from it.
// delivered, cancelled and refunded are terminal.
var allowedTransitions = map[string][]string{
	OrderStatusPending:       {OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusPaymentFailed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:          {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusProcessing:    {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:       {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:     {},
	OrderStatusCancelled:     {},
	OrderStatusRefunded:      {},
}

// ValidOrderStatuses returns all valid order statuses.
func ValidOrderStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusPaymentFailed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}

// IsValidOrderStatus checks whether the given status is a valid order status.
func IsValidOrderStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// CanTransition reports whether the state machine allows moving from one
// status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns the statuses from which the given status is reachable.
func SourcesFor(to string) []string {
	var sources []string
	for _, from := range ValidOrderStatuses() {
		for _, t := range allowedTransitions[from] {
			if t == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status string) bool {
	targets, ok := allowedTransitions[status]
	return ok && len(targets) == 0
}
