package domain

import "time"

// Stock represents the inventory counters for a product variant.
// Available quantity is always derived as quantity - reserved and never stored.
type Stock struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	VariantID         string    `json:"variant_id"`
	Quantity          int       `json:"quantity"`
	Reserved          int       `json:"reserved"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Available returns the quantity available for sale (total minus reserved).
func (s *Stock) Available() int {
	if s.Reserved > s.Quantity {
		return 0
	}
	return s.Quantity - s.Reserved
}

// Movement types recorded in the stock ledger.
const (
	MovementTypeIncrement  = "increment"
	MovementTypeDecrement  = "decrement"
	MovementTypeAdjustment = "adjustment"
)

// IsValidMovementType reports whether t is a recognized movement type.
func IsValidMovementType(t string) bool {
	switch t {
	case MovementTypeIncrement, MovementTypeDecrement, MovementTypeAdjustment:
		return true
	}
	return false
}

// Well-known movement reasons. Reasons are free-form text; these constants
// cover the transitions the services themselves generate.
const (
	MovementReasonRestock            = "restock"
	MovementReasonManualAdjustment   = "manual_adjustment"
	MovementReasonReservationConfirm = "reservation_confirmed"
	MovementReasonOrderRollback      = "order_rollback"
	MovementReasonReturn             = "return"
)

// StockMovement is one append-only ledger entry. PreviousQuantity and
// NewQuantity snapshot the counter around the change so the ledger replays
// to the current state.
type StockMovement struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	VariantID        string    `json:"variant_id"`
	MovementType     string    `json:"movement_type"`
	QuantityChange   int       `json:"quantity_change"`
	Reason           string    `json:"reason"`
	ReferenceID      *string   `json:"reference_id,omitempty"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	CreatedAt        time.Time `json:"created_at"`
}
