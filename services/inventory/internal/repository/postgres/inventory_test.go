package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/commerce/pkg/database"
	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/inventory/internal/domain"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupRepo(t *testing.T) (*InventoryRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewInventoryRepository(mock)
	return repo, mock
}

var stockColumns = []string{
	"id", "product_id", "variant_id",
	"quantity", "reserved", "low_stock_threshold", "updated_at",
}

var reservationColumns = []string{
	"id", "owner_id", "owner_type", "session_id",
	"status", "reference_id", "expires_at", "created_at",
}

var reservationItemColumns = []string{
	"id", "reservation_id", "product_id", "variant_id", "quantity",
}

func sampleStock() domain.Stock {
	return domain.Stock{
		ID:                "stock-1",
		ProductID:         "prod-1",
		VariantID:         "var-1",
		Quantity:          100,
		Reserved:          10,
		LowStockThreshold: 5,
		UpdatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleReservation() domain.Reservation {
	return domain.Reservation{
		ID:        "res-1",
		OwnerID:   "user-1",
		OwnerType: domain.OwnerTypeUser,
		SessionID: "sess-1",
		Status:    domain.ReservationStatusActive,
		ExpiresAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Items: []domain.ReservationItem{
			{ID: "item-1", ReservationID: "res-1", ProductID: "prod-1", VariantID: "var-1", Quantity: 3},
		},
	}
}

// ---------------------------------------------------------------------------
// GetByProductVariant
// ---------------------------------------------------------------------------

func TestInventoryRepository_GetByProductVariant_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	s := sampleStock()
	mock.ExpectQuery("SELECT .+ FROM stock WHERE").
		WithArgs(s.ProductID, s.VariantID).
		WillReturnRows(
			pgxmock.NewRows(stockColumns).
				AddRow(s.ID, s.ProductID, s.VariantID,
					s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt),
		)

	result, err := repo.GetByProductVariant(context.Background(), s.ProductID, s.VariantID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, result.ID)
	assert.Equal(t, s.Quantity, result.Quantity)
	assert.Equal(t, s.Reserved, result.Reserved)
	assert.Equal(t, 90, result.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_GetByProductVariant_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM stock WHERE").
		WithArgs("prod-x", "var-x").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByProductVariant(context.Background(), "prod-x", "var-x")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// CreateStock
// ---------------------------------------------------------------------------

func TestInventoryRepository_CreateStock_Upsert(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	s := sampleStock()
	mock.ExpectQuery("INSERT INTO stock").
		WithArgs(s.ID, s.ProductID, s.VariantID, s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt).
		WillReturnRows(
			pgxmock.NewRows(stockColumns).
				AddRow(s.ID, s.ProductID, s.VariantID,
					s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt),
		)

	result, err := repo.CreateStock(context.Background(), &s)
	require.NoError(t, err)
	assert.Equal(t, s.Quantity, result.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_CreateStock_ReinitBelowReserved(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	// Existing row holds reserved=5; re-seeding quantity=0 loses the guarded
	// upsert and must not drive quantity under reserved.
	s := sampleStock()
	s.Quantity = 0
	mock.ExpectQuery("INSERT INTO stock").
		WithArgs(s.ID, s.ProductID, s.VariantID, s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.CreateStock(context.Background(), &s)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// AdjustQuantity
// ---------------------------------------------------------------------------

func TestInventoryRepository_AdjustQuantity_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	refID := "order-123"
	updatedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock").
		WithArgs(-10, "prod-1", "var-1").
		WillReturnRows(
			pgxmock.NewRows([]string{"id", "quantity", "reserved", "low_stock_threshold", "updated_at"}).
				AddRow("stock-1", 90, 5, 10, updatedAt),
		)
	mock.ExpectQuery("INSERT INTO stock_movements").
		WithArgs(pgxmock.AnyArg(), "prod-1", "var-1", domain.MovementTypeDecrement, -10, "order", &refID, 100, 90).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(updatedAt))
	mock.ExpectCommit()

	result, err := repo.AdjustQuantity(context.Background(), "prod-1", "var-1", -10,
		domain.MovementTypeDecrement, "order", &refID)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 90, result.Stock.Quantity)
	assert.Equal(t, 100, result.Movement.PreviousQuantity)
	assert.Equal(t, 90, result.Movement.NewQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_AdjustQuantity_Insufficient(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock").
		WithArgs(-50, "prod-1", "var-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT quantity, reserved FROM stock").
		WithArgs("prod-1", "var-1").
		WillReturnRows(pgxmock.NewRows([]string{"quantity", "reserved"}).AddRow(40, 10))
	mock.ExpectRollback()

	result, err := repo.AdjustQuantity(context.Background(), "prod-1", "var-1", -50,
		domain.MovementTypeDecrement, "order", nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_AdjustQuantity_StockNotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock").
		WithArgs(5, "prod-x", "var-x").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT quantity, reserved FROM stock").
		WithArgs("prod-x", "var-x").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	result, err := repo.AdjustQuantity(context.Background(), "prod-x", "var-x", 5,
		domain.MovementTypeIncrement, "restock", nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_AdjustQuantity_DuplicateReference(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	refID := "order-123"
	s := sampleStock()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock").
		WithArgs(10, s.ProductID, s.VariantID).
		WillReturnRows(
			pgxmock.NewRows([]string{"id", "quantity", "reserved", "low_stock_threshold", "updated_at"}).
				AddRow(s.ID, 110, s.Reserved, s.LowStockThreshold, s.UpdatedAt),
		)
	// ON CONFLICT DO NOTHING returns no row for the duplicate pair.
	mock.ExpectQuery("INSERT INTO stock_movements").
		WithArgs(pgxmock.AnyArg(), s.ProductID, s.VariantID, domain.MovementTypeIncrement, 10, "order_rollback", &refID, 100, 110).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT .+ FROM stock WHERE").
		WithArgs(s.ProductID, s.VariantID).
		WillReturnRows(
			pgxmock.NewRows(stockColumns).
				AddRow(s.ID, s.ProductID, s.VariantID, s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt),
		)

	result, err := repo.AdjustQuantity(context.Background(), s.ProductID, s.VariantID, 10,
		domain.MovementTypeIncrement, "order_rollback", &refID)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Nil(t, result.Movement)
	assert.Equal(t, 100, result.Stock.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// CreateWithHolds
// ---------------------------------------------------------------------------

func TestInventoryRepository_CreateWithHolds_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	res := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE stock").
		WithArgs(3, "prod-1", "var-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(res.ID, res.OwnerID, res.OwnerType, res.SessionID, res.Status, res.ReferenceID, res.ExpiresAt, res.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reservation_items").
		WithArgs("item-1", res.ID, "prod-1", "var-1", 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.CreateWithHolds(context.Background(), &res)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_CreateWithHolds_InsufficientStock(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	res := sampleReservation()

	mock.ExpectBegin()
	// conditional update matches no row: not enough available
	mock.ExpectExec("UPDATE stock").
		WithArgs(3, "prod-1", "var-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT quantity, reserved FROM stock").
		WithArgs("prod-1", "var-1").
		WillReturnRows(pgxmock.NewRows([]string{"quantity", "reserved"}).AddRow(10, 9))
	mock.ExpectRollback()

	err := repo.CreateWithHolds(context.Background(), &res)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Confirm
// ---------------------------------------------------------------------------

func TestInventoryRepository_Confirm_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	res := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reservations").
		WithArgs(res.ID, domain.ReservationStatusUsed, "order-9", domain.ReservationStatusActive).
		WillReturnRows(
			pgxmock.NewRows([]string{"owner_id", "owner_type", "session_id", "expires_at", "created_at"}).
				AddRow(res.OwnerID, res.OwnerType, res.SessionID, res.ExpiresAt, res.CreatedAt),
		)
	mock.ExpectQuery("SELECT .+ FROM reservation_items").
		WithArgs(res.ID).
		WillReturnRows(
			pgxmock.NewRows(reservationItemColumns).
				AddRow("item-1", res.ID, "prod-1", "var-1", 3),
		)
	mock.ExpectQuery("UPDATE stock").
		WithArgs(3, "prod-1", "var-1").
		WillReturnRows(pgxmock.NewRows([]string{"quantity"}).AddRow(97))
	mock.ExpectExec("INSERT INTO stock_movements").
		WithArgs(pgxmock.AnyArg(), "prod-1", "var-1", domain.MovementTypeDecrement, -3,
			domain.MovementReasonReservationConfirm, "order-9", 100, 97).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := repo.Confirm(context.Background(), res.ID, "order-9")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusUsed, result.Status)
	require.NotNil(t, result.ReferenceID)
	assert.Equal(t, "order-9", *result.ReferenceID)
	assert.Len(t, result.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Confirm_NotActive(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reservations").
		WithArgs("res-1", domain.ReservationStatusUsed, "order-9", domain.ReservationStatusActive).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status, expires_at FROM reservations").
		WithArgs("res-1").
		WillReturnRows(
			pgxmock.NewRows([]string{"status", "expires_at"}).
				AddRow(domain.ReservationStatusCancelled, time.Now().Add(time.Hour)),
		)
	mock.ExpectRollback()

	result, err := repo.Confirm(context.Background(), "res-1", "order-9")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Confirm_Expired(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reservations").
		WithArgs("res-1", domain.ReservationStatusUsed, "order-9", domain.ReservationStatusActive).
		WillReturnError(pgx.ErrNoRows)
	// still active in the table, but the TTL has lapsed
	mock.ExpectQuery("SELECT status, expires_at FROM reservations").
		WithArgs("res-1").
		WillReturnRows(
			pgxmock.NewRows([]string{"status", "expires_at"}).
				AddRow(domain.ReservationStatusActive, time.Now().Add(-time.Minute)),
		)
	mock.ExpectRollback()

	result, err := repo.Confirm(context.Background(), "res-1", "order-9")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrGone)
	// Expired confirms are conflicts on the guarded transition, like any
	// other non-active state.
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestInventoryRepository_Release_Cancelled(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	res := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reservations").
		WithArgs(res.ID, domain.ReservationStatusCancelled, domain.ReservationStatusActive).
		WillReturnRows(
			pgxmock.NewRows([]string{"owner_id", "owner_type", "session_id", "reference_id", "expires_at", "created_at"}).
				AddRow(res.OwnerID, res.OwnerType, res.SessionID, nil, res.ExpiresAt, res.CreatedAt),
		)
	mock.ExpectQuery("SELECT .+ FROM reservation_items").
		WithArgs(res.ID).
		WillReturnRows(
			pgxmock.NewRows(reservationItemColumns).
				AddRow("item-1", res.ID, "prod-1", "var-1", 3),
		)
	mock.ExpectExec("UPDATE stock").
		WithArgs(3, "prod-1", "var-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	result, err := repo.Release(context.Background(), res.ID, domain.ReservationStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Release_AlreadyTerminal(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reservations").
		WithArgs("res-1", domain.ReservationStatusExpired, domain.ReservationStatusActive).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM reservations").
		WithArgs("res-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.ReservationStatusUsed))
	mock.ExpectRollback()

	result, err := repo.Release(context.Background(), "res-1", domain.ReservationStatusExpired)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_Release_InvalidStatus(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	result, err := repo.Release(context.Background(), "res-1", domain.ReservationStatusUsed)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ---------------------------------------------------------------------------
// GetByID / GetExpired
// ---------------------------------------------------------------------------

func TestInventoryRepository_GetReservationByID_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	res := sampleReservation()
	mock.ExpectQuery("SELECT .+ FROM reservations").
		WithArgs(res.ID).
		WillReturnRows(
			pgxmock.NewRows(reservationColumns).
				AddRow(res.ID, res.OwnerID, res.OwnerType, res.SessionID, res.Status, nil, res.ExpiresAt, res.CreatedAt),
		)
	mock.ExpectQuery("SELECT .+ FROM reservation_items").
		WithArgs(res.ID).
		WillReturnRows(
			pgxmock.NewRows(reservationItemColumns).
				AddRow("item-1", res.ID, "prod-1", "var-1", 3),
		)

	result, err := repo.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, result.ID)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 3, result.Items[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_GetReservationByID_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM reservations").
		WithArgs("res-x").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "res-x")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_GetExpired(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	now := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	res := sampleReservation()
	mock.ExpectQuery("SELECT .+ FROM reservations").
		WithArgs(domain.ReservationStatusActive, now, 100).
		WillReturnRows(
			pgxmock.NewRows(reservationColumns).
				AddRow(res.ID, res.OwnerID, res.OwnerType, res.SessionID, res.Status, nil, res.ExpiresAt, res.CreatedAt),
		)

	result, err := repo.GetExpired(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, res.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_GetExpired_Empty(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	now := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .+ FROM reservations").
		WithArgs(domain.ReservationStatusActive, now, 50).
		WillReturnRows(pgxmock.NewRows(reservationColumns))

	result, err := repo.GetExpired(context.Background(), now, 50)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListLowStock
// ---------------------------------------------------------------------------

func TestInventoryRepository_ListLowStock(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	s := sampleStock()
	cols := append(append([]string{}, stockColumns...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM stock").
		WithArgs(20, 0).
		WillReturnRows(
			pgxmock.NewRows(cols).
				AddRow(s.ID, s.ProductID, s.VariantID, 4, 0, 5, s.UpdatedAt, 1),
		)

	stocks, total, err := repo.ListLowStock(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, stocks, 1)
	assert.Equal(t, 4, stocks[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_ListMovements(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "product_id", "variant_id", "movement_type", "quantity_change", "reason",
		"reference_id", "previous_quantity", "new_quantity", "created_at", "total_count",
	}
	mock.ExpectQuery("SELECT .+ FROM stock_movements").
		WithArgs("prod-1", "var-1", 20, 0).
		WillReturnRows(
			pgxmock.NewRows(cols).
				AddRow("mov-1", "prod-1", "var-1", domain.MovementTypeDecrement, -3, "order", nil, 100, 97, created, 1),
		)

	movements, total, err := repo.ListMovements(context.Background(), "prod-1", "var-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, movements, 1)
	assert.Equal(t, -3, movements[0].QuantityChange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// transaction begin failures
// ---------------------------------------------------------------------------

func TestInventoryRepository_AdjustQuantity_BeginError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	result, err := repo.AdjustQuantity(context.Background(), "prod-1", "var-1", 10,
		domain.MovementTypeIncrement, "restock", nil)
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
