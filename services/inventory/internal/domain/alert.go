package domain

import "time"

// Alert types.
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// Alert statuses. Created and notified are open; resolved and ignored are
// closed and never reopen automatically.
const (
	AlertStatusCreated  = "created"
	AlertStatusNotified = "notified"
	AlertStatusResolved = "resolved"
	AlertStatusIgnored  = "ignored"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// InventoryAlert flags a product variant whose available stock has fallen to
// or below its threshold. At most one open alert exists per
// (product, variant, type); repeated evaluations update it in place.
type InventoryAlert struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"product_id"`
	VariantID       string     `json:"variant_id"`
	AlertType       string     `json:"alert_type"`
	Severity        string     `json:"severity"`
	Status          string     `json:"status"`
	CurrentStock    int        `json:"current_stock"`
	Threshold       int        `json:"threshold"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsOpen reports whether the alert is still awaiting action.
func (a *InventoryAlert) IsOpen() bool {
	return a.Status == AlertStatusCreated || a.Status == AlertStatusNotified
}

// SeverityFor derives the alert severity from the available quantity relative
// to the low-stock threshold. Out of stock is always critical.
func SeverityFor(available, threshold int) string {
	if available <= 0 {
		return SeverityCritical
	}
	if threshold <= 0 {
		return SeverityLow
	}
	ratio := float64(available) / float64(threshold)
	switch {
	case ratio <= 0.25:
		return SeverityHigh
	case ratio <= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
