package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Stock.Available Tests
// ============================================================================

func TestAvailable_Normal(t *testing.T) {
	s := &Stock{Quantity: 100, Reserved: 30}
	assert.Equal(t, 70, s.Available())
}

func TestAvailable_AllReserved(t *testing.T) {
	s := &Stock{Quantity: 50, Reserved: 50}
	assert.Equal(t, 0, s.Available())
}

func TestAvailable_NoneReserved(t *testing.T) {
	s := &Stock{Quantity: 100, Reserved: 0}
	assert.Equal(t, 100, s.Available())
}

func TestAvailable_ReservedExceedsQuantity(t *testing.T) {
	// Guards against negative: should return 0
	s := &Stock{Quantity: 10, Reserved: 20}
	assert.Equal(t, 0, s.Available())
}

// ============================================================================
// Movement Type Tests
// ============================================================================

func TestIsValidMovementType_Valid(t *testing.T) {
	for _, mt := range []string{MovementTypeIncrement, MovementTypeDecrement, MovementTypeAdjustment} {
		assert.True(t, IsValidMovementType(mt), "expected %q to be valid", mt)
	}
}

func TestIsValidMovementType_Invalid(t *testing.T) {
	assert.False(t, IsValidMovementType("unknown"))
	assert.False(t, IsValidMovementType(""))
	assert.False(t, IsValidMovementType("INCREMENT"))
}

func TestStockMovement_QuantitySnapshots(t *testing.T) {
	m := StockMovement{
		MovementType:     MovementTypeDecrement,
		QuantityChange:   -5,
		PreviousQuantity: 20,
		NewQuantity:      15,
	}
	assert.Equal(t, m.PreviousQuantity+m.QuantityChange, m.NewQuantity)
}

// ============================================================================
// Reservation Tests
// ============================================================================

func TestReservation_IsActive(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, r.IsActive(now))
}

func TestReservation_IsNotActive_TerminalStatuses(t *testing.T) {
	now := time.Now().UTC()
	for _, status := range []string{ReservationStatusUsed, ReservationStatusExpired, ReservationStatusCancelled} {
		r := &Reservation{Status: status, ExpiresAt: now.Add(time.Hour)}
		assert.False(t, r.IsActive(now), "expected %q to not be active", status)
	}
}

func TestReservation_IsNotActive_WhenExpired(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, r.IsActive(now))
	assert.True(t, r.IsExpired(now))
}

func TestReservation_IsNotExpired(t *testing.T) {
	now := time.Now().UTC()
	r := &Reservation{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, r.IsExpired(now))
}

func TestIsValidOwnerType(t *testing.T) {
	assert.True(t, IsValidOwnerType(OwnerTypeUser))
	assert.True(t, IsValidOwnerType(OwnerTypeGuest))
	assert.False(t, IsValidOwnerType("system"))
	assert.False(t, IsValidOwnerType(""))
}

// ============================================================================
// Alert Tests
// ============================================================================

func TestInventoryAlert_IsOpen(t *testing.T) {
	assert.True(t, (&InventoryAlert{Status: AlertStatusCreated}).IsOpen())
	assert.True(t, (&InventoryAlert{Status: AlertStatusNotified}).IsOpen())
	assert.False(t, (&InventoryAlert{Status: AlertStatusResolved}).IsOpen())
	assert.False(t, (&InventoryAlert{Status: AlertStatusIgnored}).IsOpen())
}

func TestSeverityFor_OutOfStock(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(0, 10))
	assert.Equal(t, SeverityCritical, SeverityFor(-3, 10))
}

func TestSeverityFor_Scaled(t *testing.T) {
	assert.Equal(t, SeverityHigh, SeverityFor(2, 10))
	assert.Equal(t, SeverityMedium, SeverityFor(5, 10))
	assert.Equal(t, SeverityLow, SeverityFor(8, 10))
}

func TestSeverityFor_ZeroThreshold(t *testing.T) {
	assert.Equal(t, SeverityLow, SeverityFor(5, 0))
}
