package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quayside/commerce/pkg/errors"
	pkgkafka "github.com/quayside/commerce/pkg/kafka"
)

// --- Mock ReservationService ---

type mockReservationService struct {
	mock.Mock
}

func (m *mockReservationService) CancelReservation(ctx context.Context, reservationID string) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEvent(eventType string, data any) *pkgkafka.Event {
	dataBytes, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       "evt-test-123",
		EventType:     eventType,
		AggregateID:   "agg-test-456",
		AggregateType: "order",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "test-service",
		Data:          dataBytes,
	}
}

// ============================================================
// HandleOrderCancelled tests
// ============================================================

func TestHandleOrderCancelled_ReleasesReservation(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	payload := OrderCancelledData{
		OrderID:       "order-001",
		ReservationID: "res-abc",
		Reason:        "customer request",
	}

	service.On("CancelReservation", ctx, "res-abc").Return(nil)

	err := consumer.HandleOrderCancelled(ctx, newTestEvent(TopicOrderCancelled, payload))

	require.NoError(t, err)
	service.AssertExpectations(t)
}

func TestHandleOrderCancelled_NoReservation(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	payload := OrderCancelledData{
		OrderID: "order-002",
	}

	err := consumer.HandleOrderCancelled(ctx, newTestEvent(TopicOrderCancelled, payload))

	require.NoError(t, err)
	service.AssertNotCalled(t, "CancelReservation", mock.Anything, mock.Anything)
}

func TestHandleOrderCancelled_AlreadyReleased(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	payload := OrderCancelledData{
		OrderID:       "order-003",
		ReservationID: "res-def",
	}

	// Redelivered event: the first delivery already cancelled the hold.
	service.On("CancelReservation", ctx, "res-def").
		Return(apperrors.Conflict("reservation res-def is cancelled, cannot be cancelled"))

	err := consumer.HandleOrderCancelled(ctx, newTestEvent(TopicOrderCancelled, payload))

	require.NoError(t, err)
	service.AssertExpectations(t)
}

func TestHandleOrderCancelled_ExpiredReservation(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	payload := OrderCancelledData{
		OrderID:       "order-004",
		ReservationID: "res-ghi",
	}

	service.On("CancelReservation", ctx, "res-ghi").
		Return(apperrors.Gone("reservation res-ghi expired before cancellation"))

	err := consumer.HandleOrderCancelled(ctx, newTestEvent(TopicOrderCancelled, payload))

	require.NoError(t, err)
	service.AssertExpectations(t)
}

func TestHandleOrderCancelled_ServiceError(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	payload := OrderCancelledData{
		OrderID:       "order-005",
		ReservationID: "res-jkl",
	}

	service.On("CancelReservation", ctx, "res-jkl").Return(errors.New("database unavailable"))

	err := consumer.HandleOrderCancelled(ctx, newTestEvent(TopicOrderCancelled, payload))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cancel reservation res-jkl")
	service.AssertExpectations(t)
}

func TestHandleOrderCancelled_InvalidJSON(t *testing.T) {
	service := new(mockReservationService)
	consumer := NewConsumer(service, newTestLogger())
	ctx := context.Background()

	event := &pkgkafka.Event{
		EventID:   "evt-test-bad",
		EventType: TopicOrderCancelled,
		Data:      json.RawMessage(`{broken`),
	}

	err := consumer.HandleOrderCancelled(ctx, event)

	assert.Error(t, err)
	// Classified permanent so it dead-letters instead of retrying.
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.True(t, apperrors.IsPermanent(err))
	service.AssertNotCalled(t, "CancelReservation", mock.Anything, mock.Anything)
}
