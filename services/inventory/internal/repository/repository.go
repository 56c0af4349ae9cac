package repository

import (
	"context"
	"time"

	"github.com/quayside/commerce/services/inventory/internal/domain"
)

// AdjustResult reports the outcome of a stock adjustment.
type AdjustResult struct {
	Stock    *domain.Stock
	Movement *domain.StockMovement
	// Duplicate is true when the (reference_id, movement_type) pair was
	// already recorded in the ledger and the adjustment was skipped.
	Duplicate bool
}

// StockRepository defines the interface for stock persistence operations.
type StockRepository interface {
	// GetByProductVariant retrieves stock for a specific product variant.
	GetByProductVariant(ctx context.Context, productID, variantID string) (*domain.Stock, error)

	// CreateStock inserts a new stock record or updates quantity and
	// threshold if one already exists (idempotent seeding). Re-initializing
	// below the current reserved holds fails with a conflict so
	// quantity >= reserved always holds.
	CreateStock(ctx context.Context, stock *domain.Stock) (*domain.Stock, error)

	// AdjustQuantity applies delta to the stock quantity with a single
	// conditional update and appends one ledger movement. It fails with
	// ErrInsufficientStock when the result would drop below the reserved
	// count or below zero. A duplicate (referenceID, movementType) pair
	// leaves the counters untouched.
	AdjustQuantity(ctx context.Context, productID, variantID string, delta int, movementType, reason string, referenceID *string) (*AdjustResult, error)

	// ListLowStock returns stock items where available quantity is at or
	// below the low stock threshold.
	ListLowStock(ctx context.Context, page, perPage int) ([]domain.Stock, int, error)

	// ListMovements returns the ledger entries for a product variant,
	// newest first.
	ListMovements(ctx context.Context, productID, variantID string, page, perPage int) ([]domain.StockMovement, int, error)
}

// ReservationRepository defines the interface for reservation persistence operations.
type ReservationRepository interface {
	// CreateWithHolds inserts the reservation and its items, incrementing
	// the reserved count per item with conditional updates. The whole
	// operation runs in one transaction; any item without sufficient
	// available stock rolls everything back with ErrInsufficientStock.
	CreateWithHolds(ctx context.Context, reservation *domain.Reservation) error

	// GetByID retrieves a reservation with its items.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// Confirm transitions the reservation from active to used and converts
	// each hold into a permanent decrement with a ledger movement tagged by
	// referenceID. Returns ErrConflict when the reservation is not active.
	Confirm(ctx context.Context, id string, referenceID string) (*domain.Reservation, error)

	// Release transitions the reservation from active to the given terminal
	// status (expired or cancelled) and releases the held quantities.
	// Returns ErrConflict when the reservation is not active.
	Release(ctx context.Context, id string, status string) (*domain.Reservation, error)

	// GetExpired returns active reservations whose expiry has passed.
	GetExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

// AlertRepository defines the interface for inventory alert persistence.
type AlertRepository interface {
	// UpsertOpen creates an open alert for (product, variant, type) or
	// refreshes the severity and stock snapshot of the existing open one.
	UpsertOpen(ctx context.Context, alert *domain.InventoryAlert) (*domain.InventoryAlert, error)

	// GetByID retrieves an alert by its identifier.
	GetByID(ctx context.Context, id string) (*domain.InventoryAlert, error)

	// Close transitions an open alert to resolved or ignored. Returns
	// ErrConflict when the alert is already closed.
	Close(ctx context.Context, id, status, userID string, notes *string) (*domain.InventoryAlert, error)

	// ListOpen returns open alerts, most severe and most recent first.
	ListOpen(ctx context.Context, page, perPage int) ([]domain.InventoryAlert, int, error)
}
