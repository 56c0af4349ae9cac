package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/inventory/internal/domain"
)

// evaluateAlerts checks the stock against its threshold after a successful
// adjustment or confirmation. At most one open alert exists per
// (product, variant, type); repeated crossings refresh it in place. Failures
// here never fail the adjustment that triggered the evaluation.
func (s *InventoryService) evaluateAlerts(ctx context.Context, stock *domain.Stock) {
	available := stock.Available()

	var alertType string
	switch {
	case available <= 0:
		alertType = domain.AlertTypeOutOfStock
	case available <= stock.LowStockThreshold:
		alertType = domain.AlertTypeLowStock
	default:
		return
	}

	alert := &domain.InventoryAlert{
		ID:           uuid.New().String(),
		ProductID:    stock.ProductID,
		VariantID:    stock.VariantID,
		AlertType:    alertType,
		Severity:     domain.SeverityFor(available, stock.LowStockThreshold),
		Status:       domain.AlertStatusCreated,
		CurrentStock: available,
		Threshold:    stock.LowStockThreshold,
	}

	result, err := s.alertRepo.UpsertOpen(ctx, alert)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upsert inventory alert",
			slog.String("product_id", stock.ProductID),
			slog.String("variant_id", stock.VariantID),
			slog.String("alert_type", alertType),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.producer.PublishAlertRaised(ctx, result); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish alert_raised event",
			slog.String("alert_id", result.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.WarnContext(ctx, "inventory alert raised",
		slog.String("alert_id", result.ID),
		slog.String("product_id", stock.ProductID),
		slog.String("variant_id", stock.VariantID),
		slog.String("alert_type", alertType),
		slog.String("severity", result.Severity),
		slog.Int("available", available),
		slog.Int("threshold", stock.LowStockThreshold),
	)
}

// ResolveAlert closes an open alert as handled.
func (s *InventoryService) ResolveAlert(ctx context.Context, alertID, userID string, notes *string) (*domain.InventoryAlert, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}

	alert, err := s.alertRepo.Close(ctx, alertID, domain.AlertStatusResolved, userID, notes)
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}

	s.logger.InfoContext(ctx, "inventory alert resolved",
		slog.String("alert_id", alertID),
		slog.String("resolved_by", userID),
	)

	return alert, nil
}

// IgnoreAlert closes an open alert without action.
func (s *InventoryService) IgnoreAlert(ctx context.Context, alertID, userID string, notes *string) (*domain.InventoryAlert, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}

	alert, err := s.alertRepo.Close(ctx, alertID, domain.AlertStatusIgnored, userID, notes)
	if err != nil {
		return nil, fmt.Errorf("ignore alert: %w", err)
	}

	s.logger.InfoContext(ctx, "inventory alert ignored",
		slog.String("alert_id", alertID),
		slog.String("ignored_by", userID),
	)

	return alert, nil
}

// ListAlerts returns open alerts ordered by severity.
func (s *InventoryService) ListAlerts(ctx context.Context, page, perPage int) ([]domain.InventoryAlert, int, error) {
	alerts, total, err := s.alertRepo.ListOpen(ctx, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, total, nil
}
