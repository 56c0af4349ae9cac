package domain

import "time"

// Reservation statuses. Active is the only state that admits transitions;
// used, expired and cancelled are terminal.
const (
	ReservationStatusActive    = "active"
	ReservationStatusUsed      = "used"
	ReservationStatusExpired   = "expired"
	ReservationStatusCancelled = "cancelled"
)

// Owner types for reservations.
const (
	OwnerTypeUser  = "user"
	OwnerTypeGuest = "guest"
)

// IsValidOwnerType reports whether t is a recognized reservation owner type.
func IsValidOwnerType(t string) bool {
	return t == OwnerTypeUser || t == OwnerTypeGuest
}

// Reservation is a time-limited hold on stock for a set of items. The hold
// counts against reserved until it is used (converted into a permanent
// decrement), cancelled or expired.
type Reservation struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	OwnerType   string            `json:"owner_type"`
	SessionID   string            `json:"session_id"`
	Status      string            `json:"status"`
	ReferenceID *string           `json:"reference_id,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []ReservationItem `json:"items"`
}

// ReservationItem is one product variant hold within a reservation.
type ReservationItem struct {
	ID            string `json:"id"`
	ReservationID string `json:"reservation_id"`
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id"`
	Quantity      int    `json:"quantity"`
}

// IsExpired reports whether the reservation has passed its expiry time.
// Status is not consulted; callers combine this with the status check.
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsActive reports whether the reservation is active and not yet expired.
func (r *Reservation) IsActive(now time.Time) bool {
	return r.Status == ReservationStatusActive && !r.IsExpired(now)
}
