package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/inventory/internal/domain"
	"github.com/quayside/commerce/services/inventory/internal/repository"
)

// EventPublisher is the outbound event surface used by the service.
// *event.Producer satisfies it.
type EventPublisher interface {
	PublishStockAdjusted(ctx context.Context, stock *domain.Stock, movement *domain.StockMovement) error
	PublishReservationCreated(ctx context.Context, res *domain.Reservation) error
	PublishReservationConfirmed(ctx context.Context, res *domain.Reservation) error
	PublishReservationReleased(ctx context.Context, res *domain.Reservation) error
	PublishAlertRaised(ctx context.Context, alert *domain.InventoryAlert) error
}

// InventoryService implements the business logic for stock, reservations and alerts.
type InventoryService struct {
	stockRepo       repository.StockRepository
	reservationRepo repository.ReservationRepository
	alertRepo       repository.AlertRepository
	producer        EventPublisher
	logger          *slog.Logger
	reservationTTL  time.Duration
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(
	stockRepo repository.StockRepository,
	reservationRepo repository.ReservationRepository,
	alertRepo repository.AlertRepository,
	producer EventPublisher,
	logger *slog.Logger,
	reservationTTL time.Duration,
) *InventoryService {
	return &InventoryService{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		alertRepo:       alertRepo,
		producer:        producer,
		logger:          logger,
		reservationTTL:  reservationTTL,
	}
}

// InitializeStock creates a new stock record or updates it if one already
// exists for the product variant. This is the entry point for seeding
// inventory via the HTTP API.
func (s *InventoryService) InitializeStock(ctx context.Context, stock *domain.Stock) (*domain.Stock, error) {
	if stock.ProductID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if stock.VariantID == "" {
		return nil, apperrors.InvalidInput("variant_id is required")
	}
	if stock.Quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must be non-negative")
	}
	if stock.LowStockThreshold < 0 {
		return nil, apperrors.InvalidInput("low_stock_threshold must be non-negative")
	}

	stock.ID = uuid.New().String()
	stock.Reserved = 0
	stock.UpdatedAt = time.Now().UTC()

	result, err := s.stockRepo.CreateStock(ctx, stock)
	if err != nil {
		return nil, fmt.Errorf("initialize stock: %w", err)
	}

	s.logger.InfoContext(ctx, "stock initialized",
		slog.String("product_id", result.ProductID),
		slog.String("variant_id", result.VariantID),
		slog.Int("quantity", result.Quantity),
	)

	return result, nil
}

// GetStock retrieves the stock level for a specific product variant.
func (s *InventoryService) GetStock(ctx context.Context, productID, variantID string) (*domain.Stock, error) {
	stock, err := s.stockRepo.GetByProductVariant(ctx, productID, variantID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// AdjustStockInput carries the parameters of a stock adjustment.
type AdjustStockInput struct {
	ProductID    string
	VariantID    string
	Delta        int
	MovementType string
	Reason       string
	ReferenceID  *string
}

func (in *AdjustStockInput) validate() error {
	if in.ProductID == "" {
		return apperrors.InvalidInput("product_id is required")
	}
	if in.VariantID == "" {
		return apperrors.InvalidInput("variant_id is required")
	}
	if in.Delta == 0 {
		return apperrors.InvalidInput("delta must be non-zero")
	}
	if !domain.IsValidMovementType(in.MovementType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid movement type %q", in.MovementType))
	}
	if in.MovementType == domain.MovementTypeIncrement && in.Delta < 0 {
		return apperrors.InvalidInput("increment requires a positive delta")
	}
	if in.MovementType == domain.MovementTypeDecrement && in.Delta > 0 {
		return apperrors.InvalidInput("decrement requires a negative delta")
	}
	if in.Reason == "" {
		return apperrors.InvalidInput("reason is required")
	}
	return nil
}

// AdjustStock applies a delta to the stock quantity, records the ledger
// movement and evaluates alert thresholds. A redelivered adjustment carrying
// an already-recorded (reference_id, movement_type) pair is a no-op that
// returns the current counters.
func (s *InventoryService) AdjustStock(ctx context.Context, in AdjustStockInput) (*repository.AdjustResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	result, err := s.stockRepo.AdjustQuantity(ctx, in.ProductID, in.VariantID, in.Delta, in.MovementType, in.Reason, in.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	if result.Duplicate {
		s.logger.InfoContext(ctx, "duplicate stock adjustment skipped",
			slog.String("product_id", in.ProductID),
			slog.String("variant_id", in.VariantID),
			slog.String("movement_type", in.MovementType),
			slog.Any("reference_id", in.ReferenceID),
		)
		return result, nil
	}

	if err := s.producer.PublishStockAdjusted(ctx, result.Stock, result.Movement); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock_adjusted event",
			slog.String("product_id", in.ProductID),
			slog.String("variant_id", in.VariantID),
			slog.String("error", err.Error()),
		)
	}

	s.evaluateAlerts(ctx, result.Stock)

	s.logger.InfoContext(ctx, "stock adjusted",
		slog.String("product_id", in.ProductID),
		slog.String("variant_id", in.VariantID),
		slog.Int("delta", in.Delta),
		slog.String("movement_type", in.MovementType),
		slog.String("reason", in.Reason),
		slog.Int("new_quantity", result.Stock.Quantity),
		slog.Int("available", result.Stock.Available()),
	)

	return result, nil
}

// ReservationItemInput is one requested hold within a reservation.
type ReservationItemInput struct {
	ProductID string
	VariantID string
	Quantity  int
}

// CreateReservationInput carries the parameters of a new reservation.
type CreateReservationInput struct {
	OwnerID   string
	OwnerType string
	SessionID string
	Items     []ReservationItemInput
	TTL       time.Duration
}

func (in *CreateReservationInput) validate() error {
	if in.OwnerID == "" {
		return apperrors.InvalidInput("owner_id is required")
	}
	if !domain.IsValidOwnerType(in.OwnerType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid owner type %q", in.OwnerType))
	}
	if len(in.Items) == 0 {
		return apperrors.InvalidInput("items list cannot be empty")
	}
	for _, item := range in.Items {
		if item.ProductID == "" || item.VariantID == "" {
			return apperrors.InvalidInput("every item needs product_id and variant_id")
		}
		if item.Quantity <= 0 {
			return apperrors.InvalidInput("item quantity must be positive")
		}
	}
	return nil
}

// CreateReservation places a time-limited hold on stock for all requested
// items, atomically. Any item without sufficient available stock fails the
// whole reservation.
func (s *InventoryService) CreateReservation(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.reservationTTL
	}

	now := time.Now().UTC()
	reservation := &domain.Reservation{
		ID:        uuid.New().String(),
		OwnerID:   in.OwnerID,
		OwnerType: in.OwnerType,
		SessionID: in.SessionID,
		Status:    domain.ReservationStatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	for _, item := range in.Items {
		reservation.Items = append(reservation.Items, domain.ReservationItem{
			ID:            uuid.New().String(),
			ReservationID: reservation.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Quantity:      item.Quantity,
		})
	}

	if err := s.reservationRepo.CreateWithHolds(ctx, reservation); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	if err := s.producer.PublishReservationCreated(ctx, reservation); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation_created event",
			slog.String("reservation_id", reservation.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation created",
		slog.String("reservation_id", reservation.ID),
		slog.String("owner_id", in.OwnerID),
		slog.Int("item_count", len(reservation.Items)),
		slog.Time("expires_at", reservation.ExpiresAt),
	)

	return reservation, nil
}

// GetReservation retrieves a reservation. An active reservation whose TTL has
// lapsed is expired on the spot; expiry is evaluated lazily on read.
func (s *InventoryService) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	if reservation.Status == domain.ReservationStatusActive && reservation.IsExpired(time.Now().UTC()) {
		expired, err := s.expireNow(ctx, id)
		if err != nil {
			return nil, err
		}
		if expired != nil {
			return expired, nil
		}
		// Lost the race to another transition; re-read the final state.
		reservation, err = s.reservationRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get reservation: %w", err)
		}
	}

	return reservation, nil
}

// expireNow attempts the active->expired transition and releases the holds.
// It returns (nil, nil) when a concurrent transition won the race.
func (s *InventoryService) expireNow(ctx context.Context, id string) (*domain.Reservation, error) {
	released, err := s.reservationRepo.Release(ctx, id, domain.ReservationStatusExpired)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, nil
		}
		return nil, fmt.Errorf("expire reservation: %w", err)
	}

	if err := s.producer.PublishReservationReleased(ctx, released); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation_released event",
			slog.String("reservation_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation expired",
		slog.String("reservation_id", id),
	)

	return released, nil
}

// ConfirmReservation converts an active reservation's holds into permanent
// decrements tagged with referenceID. The loser of a concurrent
// confirm/cancel race gets a conflict; a lapsed reservation is expired and
// reported gone.
func (s *InventoryService) ConfirmReservation(ctx context.Context, id, referenceID string) (*domain.Reservation, error) {
	if referenceID == "" {
		return nil, apperrors.InvalidInput("reference_id is required")
	}

	confirmed, err := s.reservationRepo.Confirm(ctx, id, referenceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrGone) {
			// TTL lapsed while still active: release the holds before
			// reporting the reservation gone.
			if _, expireErr := s.expireNow(ctx, id); expireErr != nil {
				s.logger.ErrorContext(ctx, "failed to expire lapsed reservation",
					slog.String("reservation_id", id),
					slog.String("error", expireErr.Error()),
				)
			}
		}
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}

	if err := s.producer.PublishReservationConfirmed(ctx, confirmed); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation_confirmed event",
			slog.String("reservation_id", id),
			slog.String("error", err.Error()),
		)
	}

	// The confirmation decremented quantities; re-check thresholds per item.
	for _, item := range confirmed.Items {
		stock, err := s.stockRepo.GetByProductVariant(ctx, item.ProductID, item.VariantID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to load stock for alert evaluation",
				slog.String("product_id", item.ProductID),
				slog.String("variant_id", item.VariantID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.evaluateAlerts(ctx, stock)
	}

	s.logger.InfoContext(ctx, "reservation confirmed",
		slog.String("reservation_id", id),
		slog.String("reference_id", referenceID),
		slog.Int("item_count", len(confirmed.Items)),
	)

	return confirmed, nil
}

// CancelReservation cancels an active reservation and releases its holds.
// A reservation whose TTL already lapsed is expired instead and reported gone.
func (s *InventoryService) CancelReservation(ctx context.Context, id string) error {
	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get reservation for cancel: %w", err)
	}

	if reservation.Status == domain.ReservationStatusActive && reservation.IsExpired(time.Now().UTC()) {
		if _, err := s.expireNow(ctx, id); err != nil {
			return err
		}
		return apperrors.Gone(fmt.Sprintf("reservation %s expired before cancellation", id))
	}

	cancelled, err := s.reservationRepo.Release(ctx, id, domain.ReservationStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}

	if err := s.producer.PublishReservationReleased(ctx, cancelled); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reservation_released event",
			slog.String("reservation_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation cancelled",
		slog.String("reservation_id", id),
	)

	return nil
}

// SweepExpiredReservations expires active reservations that have passed their
// TTL. It is a best-effort background pass; lazy expiry on read remains
// authoritative. Returns the number of reservations expired.
func (s *InventoryService) SweepExpiredReservations(ctx context.Context) (int, error) {
	expired, err := s.reservationRepo.GetExpired(ctx, time.Now().UTC(), 100)
	if err != nil {
		return 0, fmt.Errorf("get expired reservations: %w", err)
	}

	swept := 0
	for i := range expired {
		released, err := s.expireNow(ctx, expired[i].ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire reservation",
				slog.String("reservation_id", expired[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if released != nil {
			swept++
		}
	}

	return swept, nil
}

// ListLowStock returns stock items at or below their low stock threshold.
func (s *InventoryService) ListLowStock(ctx context.Context, page, perPage int) ([]domain.Stock, int, error) {
	stocks, total, err := s.stockRepo.ListLowStock(ctx, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	return stocks, total, nil
}

// ListMovements returns the ledger entries for a product variant.
func (s *InventoryService) ListMovements(ctx context.Context, productID, variantID string, page, perPage int) ([]domain.StockMovement, int, error) {
	if productID == "" || variantID == "" {
		return nil, 0, apperrors.InvalidInput("product_id and variant_id are required")
	}
	movements, total, err := s.stockRepo.ListMovements(ctx, productID, variantID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	return movements, total, nil
}
