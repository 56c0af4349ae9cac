package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/pkg/httputil"
	"github.com/quayside/commerce/services/order/internal/domain"
	"github.com/quayside/commerce/services/order/internal/repository"
	"github.com/quayside/commerce/services/order/internal/service"
)

// ============================================================================
// Mock Repository
// ============================================================================

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) CreateWithOutbox(ctx context.Context, order *domain.Order, outbox *domain.OutboxMessage) error {
	args := m.Called(ctx, order, outbox)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Order, int, error) {
	args := m.Called(ctx, userID, offset, limit)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, update repository.StatusUpdate) (*domain.Order, string, error) {
	args := m.Called(ctx, id, from, to, update)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.Order), args.String(1), args.Error(2)
}

func (m *mockOrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]domain.StatusHistory), args.Error(1)
}

// stubInventory is a happy-path inventory service; failure cases override
// the confirm error.
type stubInventory struct {
	confirmErr error
}

func (s *stubInventory) ConfirmReservation(ctx context.Context, reservationID, orderID string) error {
	return s.confirmErr
}

func (s *stubInventory) ReturnStock(ctx context.Context, productID, variantID string, quantity int, reason, referenceID string) error {
	return nil
}

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRouter() (*chi.Mux, *mockOrderRepository, *stubInventory) {
	repo := new(mockOrderRepository)
	inv := &stubInventory{}
	svc := service.NewOrderService(repo, inv, testLogger())
	handler := NewOrderHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", handler.CreateOrder)
		r.Get("/user/{userId}", handler.ListOrdersByUser)
		r.Get("/{id}", handler.GetOrder)
		r.Post("/{id}/cancel", handler.CancelOrder)
		r.Post("/{id}/status", handler.UpdateStatus)
		r.Get("/{id}/history", handler.GetHistory)
	})
	return r, repo, inv
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const (
	validOrderID       = "770e8400-e29b-41d4-a716-446655440001"
	validUserID        = "770e8400-e29b-41d4-a716-446655440002"
	validReservationID = "770e8400-e29b-41d4-a716-446655440003"
	validProductID     = "770e8400-e29b-41d4-a716-446655440004"
	validVariantID     = "770e8400-e29b-41d4-a716-446655440005"
)

func createOrderBody() map[string]any {
	return map[string]any{
		"user_id":        validUserID,
		"reservation_id": validReservationID,
		"session_id":     "sess-1",
		"currency":       "USD",
		"shipping_address": map[string]any{
			"line1":       "1 Harbour Street",
			"city":        "Portsmouth",
			"postal_code": "PO1 2AB",
			"country":     "GB",
		},
		"items": []map[string]any{
			{
				"product_id":   validProductID,
				"variant_id":   validVariantID,
				"product_name": "Canvas Tote",
				"unit_price":   3499,
				"quantity":     2,
			},
		},
	}
}

func sampleOrder(status string) *domain.Order {
	return &domain.Order{
		ID:            validOrderID,
		OrderNumber:   "ORD-20250101-AAAA1111",
		UserID:        validUserID,
		Status:        status,
		TotalAmount:   6998,
		Currency:      "USD",
		ReservationID: validReservationID,
	}
}

// ============================================================================
// CreateOrder
// ============================================================================

func TestCreateOrderEndpoint_Success(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("CreateWithOutbox", mock.Anything, mock.AnythingOfType("*domain.Order"), mock.AnythingOfType("*domain.OutboxMessage")).Return(nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", createOrderBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(6998), data["total_amount"])
	assert.Contains(t, data["order_number"], "ORD-")
}

func TestCreateOrderEndpoint_InvalidJSON(t *testing.T) {
	router, _, _ := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestCreateOrderEndpoint_ValidationError(t *testing.T) {
	router, repo, _ := testRouter()

	body := createOrderBody()
	body["currency"] = "dollars"

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	repo.AssertNotCalled(t, "CreateWithOutbox", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrderEndpoint_NoItems(t *testing.T) {
	router, _, _ := testRouter()

	body := createOrderBody()
	body["items"] = []map[string]any{}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateOrderEndpoint_ReservationExpired(t *testing.T) {
	router, repo, inv := testRouter()
	inv.confirmErr = apperrors.Gone("reservation has expired")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", createOrderBody())

	require.Equal(t, http.StatusGone, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "GONE", resp.Error.Code)
	repo.AssertNotCalled(t, "CreateWithOutbox", mock.Anything, mock.Anything, mock.Anything)
}

// ============================================================================
// GetOrder / listing
// ============================================================================

func TestGetOrderEndpoint_Success(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(sampleOrder(domain.OrderStatusPending), nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+validOrderID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, validOrderID, data["id"])
}

func TestGetOrderEndpoint_NotFound(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(nil, apperrors.NotFound("order", validOrderID))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+validOrderID, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetOrderEndpoint_InvalidUUID(t *testing.T) {
	router, _, _ := testRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/not-a-uuid", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersEndpoint_Pagination(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("ListByUserID", mock.Anything, validUserID, 10, 10).
		Return([]domain.Order{*sampleOrder(domain.OrderStatusPaid)}, 11, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/user/"+validUserID+"?page=2&per_page=10", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp httputil.PaginatedResponse[domain.Order]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Data, 1)
}

func TestListOrdersEndpoint_InvalidPage(t *testing.T) {
	router, _, _ := testRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/user/"+validUserID+"?page=zero", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

// ============================================================================
// CancelOrder
// ============================================================================

func TestCancelOrderEndpoint_Success(t *testing.T) {
	router, repo, _ := testRouter()

	cancelled := sampleOrder(domain.OrderStatusCancelled)
	cancelled.CancelReason = "changed my mind"

	repo.On("GetByID", mock.Anything, validOrderID).Return(sampleOrder(domain.OrderStatusPending), nil)
	repo.On("TransitionStatus", mock.Anything, validOrderID,
		[]string{domain.OrderStatusPending, domain.OrderStatusPaymentFailed},
		domain.OrderStatusCancelled, mock.Anything).
		Return(cancelled, domain.OrderStatusPending, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/cancel",
		map[string]any{"reason": "changed my mind"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "cancelled", data["status"])
}

func TestCancelOrderEndpoint_EmptyBodyUsesDefaultReason(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(sampleOrder(domain.OrderStatusPending), nil)
	repo.On("TransitionStatus", mock.Anything, validOrderID, mock.Anything, domain.OrderStatusCancelled,
		mock.MatchedBy(func(u repository.StatusUpdate) bool {
			return u.CancelReason != nil && *u.CancelReason == "cancelled by user"
		})).
		Return(sampleOrder(domain.OrderStatusCancelled), domain.OrderStatusPending, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/cancel", nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelOrderEndpoint_AlreadyPaid(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(sampleOrder(domain.OrderStatusPaid), nil)
	repo.On("TransitionStatus", mock.Anything, validOrderID, mock.Anything, domain.OrderStatusCancelled, mock.Anything).
		Return(nil, "", apperrors.Conflict("order is paid, cannot transition to cancelled"))

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/cancel",
		map[string]any{"reason": "too late"})

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

// ============================================================================
// UpdateStatus
// ============================================================================

func TestUpdateStatusEndpoint_Shipped(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("TransitionStatus", mock.Anything, validOrderID,
		[]string{domain.OrderStatusProcessing}, domain.OrderStatusShipped, mock.Anything).
		Return(sampleOrder(domain.OrderStatusShipped), domain.OrderStatusProcessing, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/status",
		map[string]any{"status": "shipped"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "shipped", data["status"])
}

func TestUpdateStatusEndpoint_RejectsPaymentStates(t *testing.T) {
	router, repo, _ := testRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/status",
		map[string]any{"status": "paid"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusEndpoint_OutOfOrder(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("TransitionStatus", mock.Anything, validOrderID,
		[]string{domain.OrderStatusShipped}, domain.OrderStatusDelivered, mock.Anything).
		Return(nil, "", apperrors.Conflict("order is pending, cannot transition to delivered"))

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/"+validOrderID+"/status",
		map[string]any{"status": "delivered"})

	require.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================================================
// History
// ============================================================================

func TestGetHistoryEndpoint_Success(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(sampleOrder(domain.OrderStatusPaid), nil)
	repo.On("ListHistory", mock.Anything, validOrderID).Return([]domain.StatusHistory{
		{ID: "hist-1", OrderID: validOrderID, NewStatus: domain.OrderStatusPending, Reason: "order created"},
		{ID: "hist-2", OrderID: validOrderID, PreviousStatus: domain.OrderStatusPending, NewStatus: domain.OrderStatusPaid},
	}, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+validOrderID+"/history", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	entries := resp.Data.([]any)
	assert.Len(t, entries, 2)
}

func TestGetHistoryEndpoint_OrderNotFound(t *testing.T) {
	router, repo, _ := testRouter()

	repo.On("GetByID", mock.Anything, validOrderID).Return(nil, apperrors.NotFound("order", validOrderID))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+validOrderID+"/history", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
