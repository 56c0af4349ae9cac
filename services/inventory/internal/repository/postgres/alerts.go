package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quayside/commerce/pkg/database"
	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/inventory/internal/domain"
)

// AlertRepository implements alert persistence using PostgreSQL.
type AlertRepository struct {
	pool database.DBTX
}

// NewAlertRepository creates a new PostgreSQL-backed alert repository.
func NewAlertRepository(pool database.DBTX) *AlertRepository {
	return &AlertRepository{pool: pool}
}

const alertColumns = `id, product_id, variant_id, alert_type, severity, status, current_stock, threshold,
			   resolved_by, resolution_notes, resolved_at, created_at, updated_at`

func scanAlert(row pgx.Row) (*domain.InventoryAlert, error) {
	var a domain.InventoryAlert
	err := row.Scan(
		&a.ID,
		&a.ProductID,
		&a.VariantID,
		&a.AlertType,
		&a.Severity,
		&a.Status,
		&a.CurrentStock,
		&a.Threshold,
		&a.ResolvedBy,
		&a.ResolutionNotes,
		&a.ResolvedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertOpen creates an open alert for (product, variant, type) or refreshes
// the existing open one in place. Closed alerts never reopen; a new row is
// created instead on the next threshold crossing.
func (r *AlertRepository) UpsertOpen(ctx context.Context, alert *domain.InventoryAlert) (*domain.InventoryAlert, error) {
	query := `
		INSERT INTO inventory_alerts
			(id, product_id, variant_id, alert_type, severity, status, current_stock, threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (product_id, variant_id, alert_type) WHERE status IN ('created', 'notified')
		DO UPDATE SET
			severity = EXCLUDED.severity,
			current_stock = EXCLUDED.current_stock,
			threshold = EXCLUDED.threshold,
			updated_at = NOW()
		RETURNING ` + alertColumns

	result, err := scanAlert(r.pool.QueryRow(ctx, query,
		alert.ID,
		alert.ProductID,
		alert.VariantID,
		alert.AlertType,
		alert.Severity,
		alert.Status,
		alert.CurrentStock,
		alert.Threshold,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert inventory alert: %w", err)
	}

	return result, nil
}

// GetByID retrieves an alert by its identifier.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.InventoryAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM inventory_alerts WHERE id = $1`

	alert, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("alert", id)
		}
		return nil, fmt.Errorf("get alert by id: %w", err)
	}

	return alert, nil
}

// Close transitions an open alert to resolved or ignored.
func (r *AlertRepository) Close(ctx context.Context, id, status, userID string, notes *string) (*domain.InventoryAlert, error) {
	if status != domain.AlertStatusResolved && status != domain.AlertStatusIgnored {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid alert close status %q", status))
	}

	query := `
		UPDATE inventory_alerts
		SET status = $2, resolved_by = $3, resolution_notes = $4, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('created', 'notified')
		RETURNING ` + alertColumns

	alert, err := scanAlert(r.pool.QueryRow(ctx, query, id, status, userID, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyAlertCloseFailure(ctx, id)
		}
		return nil, fmt.Errorf("close inventory alert: %w", err)
	}

	return alert, nil
}

func (r *AlertRepository) classifyAlertCloseFailure(ctx context.Context, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM inventory_alerts WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("alert", id)
		}
		return fmt.Errorf("classify alert close failure: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("alert %s is already %s", id, status))
}

// ListOpen returns open alerts, most severe and most recently updated first.
func (r *AlertRepository) ListOpen(ctx context.Context, page, perPage int) ([]domain.InventoryAlert, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	query := `
		SELECT ` + alertColumns + `,
			   count(*) OVER() AS total_count
		FROM inventory_alerts
		WHERE status IN ('created', 'notified')
		ORDER BY
			CASE severity
				WHEN 'critical' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				ELSE 3
			END,
			updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()

	var (
		alerts     []domain.InventoryAlert
		totalCount int
	)

	for rows.Next() {
		var a domain.InventoryAlert
		if err := rows.Scan(
			&a.ID,
			&a.ProductID,
			&a.VariantID,
			&a.AlertType,
			&a.Severity,
			&a.Status,
			&a.CurrentStock,
			&a.Threshold,
			&a.ResolvedBy,
			&a.ResolutionNotes,
			&a.ResolvedAt,
			&a.CreatedAt,
			&a.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate alert rows: %w", err)
	}

	if alerts == nil {
		alerts = []domain.InventoryAlert{}
	}

	return alerts, totalCount, nil
}
