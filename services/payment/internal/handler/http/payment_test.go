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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/pkg/httputil"
	"github.com/quayside/commerce/services/payment/internal/domain"
	provmock "github.com/quayside/commerce/services/payment/internal/provider/mock"
	"github.com/quayside/commerce/services/payment/internal/repository"
	"github.com/quayside/commerce/services/payment/internal/service"
)

// ============================================================================
// Mock Repository
// ============================================================================

type mockPaymentRepository struct {
	mock.Mock
}

func (m *mockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentRepository) ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Payment, int, error) {
	args := m.Called(ctx, userID, offset, limit)
	return args.Get(0).([]domain.Payment), args.Int(1), args.Error(2)
}

func (m *mockPaymentRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, update repository.StatusUpdate) (*domain.Payment, string, error) {
	args := m.Called(ctx, id, from, to, update)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.Payment), args.String(1), args.Error(2)
}

func (m *mockPaymentRepository) ListHistory(ctx context.Context, paymentID string) ([]domain.StatusHistory, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).([]domain.StatusHistory), args.Error(1)
}

func (m *mockPaymentRepository) CreateRefund(ctx context.Context, ref *domain.Refund) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *mockPaymentRepository) GetRefundByID(ctx context.Context, id string) (*domain.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *mockPaymentRepository) ListRefundsByPaymentID(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).([]domain.Refund), args.Error(1)
}

func (m *mockPaymentRepository) UpdateRefund(ctx context.Context, ref *domain.Refund) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *mockPaymentRepository) SumCompletedRefunds(ctx context.Context, paymentID string) (int64, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(int64), args.Error(1)
}

// nopPublisher discards events. Publish failures never fail a request, so
// handler tests don't assert on them.
type nopPublisher struct{}

func (nopPublisher) PublishPaymentCompleted(context.Context, *domain.Payment) error { return nil }
func (nopPublisher) PublishPaymentFailed(context.Context, *domain.Payment, bool) error {
	return nil
}
func (nopPublisher) PublishPaymentRefunded(context.Context, *domain.Payment, *domain.Refund, int64) error {
	return nil
}

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRouter() (*chi.Mux, *mockPaymentRepository) {
	repo := new(mockPaymentRepository)
	svc := service.NewPaymentService(repo, provmock.NewInstantProvider(), nopPublisher{}, testLogger())
	handler := NewPaymentHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", handler.CreatePayment)
		r.Get("/order/{orderId}", handler.GetPaymentByOrder)
		r.Get("/user/{userId}", handler.ListPaymentsByUser)
		r.Get("/{id}", handler.GetPayment)
		r.Post("/{id}/capture", handler.CapturePayment)
		r.Post("/{id}/cancel", handler.CancelPayment)
		r.Get("/{id}/history", handler.GetHistory)
		r.Post("/{id}/refunds", handler.CreateRefund)
		r.Get("/{id}/refunds", handler.ListRefunds)
	})
	return r, repo
}

func doJSON(router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
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
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

const (
	validPaymentID = "660e8400-e29b-41d4-a716-446655440001"
	validOrderID   = "660e8400-e29b-41d4-a716-446655440002"
	validUserID    = "660e8400-e29b-41d4-a716-446655440003"
)

func samplePayment() *domain.Payment {
	return &domain.Payment{
		ID:           validPaymentID,
		OrderID:      validOrderID,
		UserID:       validUserID,
		Amount:       5000,
		Currency:     "USD",
		Status:       domain.PaymentStatusPending,
		Method:       domain.PaymentMethodCreditCard,
		ProviderName: "mock",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

// ============================================================================
// POST /api/v1/payments - CreatePayment
// ============================================================================

func TestCreatePayment_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByOrderID", mock.Anything, validOrderID).
		Return(nil, apperrors.NotFound("payment for order", validOrderID))
	repo.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.OrderID == validOrderID && p.Status == domain.PaymentStatusPending
	})).Return(nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments", CreatePaymentRequest{
		OrderID:  validOrderID,
		UserID:   validUserID,
		Amount:   5000,
		Currency: "USD",
		Method:   domain.PaymentMethodCreditCard,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.NotNil(t, resp.Data)
	repo.AssertExpectations(t)
}

func TestCreatePayment_InvalidJSON(t *testing.T) {
	router, _ := testRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestCreatePayment_ValidationError(t *testing.T) {
	router, _ := testRouter()

	rec := doJSON(router, http.MethodPost, "/api/v1/payments", CreatePaymentRequest{
		OrderID:  validOrderID,
		UserID:   validUserID,
		Amount:   5000,
		Currency: "USD",
		Method:   "cash",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreatePayment_DuplicateOrder(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByOrderID", mock.Anything, validOrderID).Return(samplePayment(), nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments", CreatePaymentRequest{
		OrderID:  validOrderID,
		UserID:   validUserID,
		Amount:   5000,
		Currency: "USD",
		Method:   domain.PaymentMethodCreditCard,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

// ============================================================================
// GET /api/v1/payments/{id}
// ============================================================================

func TestGetPayment_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByID", mock.Anything, validPaymentID).Return(samplePayment(), nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/"+validPaymentID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetPayment_NotFound(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByID", mock.Anything, validPaymentID).
		Return(nil, apperrors.NotFound("payment", validPaymentID))

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/"+validPaymentID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPayment_InvalidUUID(t *testing.T) {
	router, _ := testRouter()

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// GET /api/v1/payments/order/{orderId} and /user/{userId}
// ============================================================================

func TestGetPaymentByOrder_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByOrderID", mock.Anything, validOrderID).Return(samplePayment(), nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/order/"+validOrderID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestListPaymentsByUser_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("ListByUserID", mock.Anything, validUserID, 10, 10).
		Return([]domain.Payment{*samplePayment()}, 11, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/user/"+validUserID+"?page=2&per_page=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp httputil.PaginatedResponse[domain.Payment]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 11, resp.TotalCount)
	repo.AssertExpectations(t)
}

func TestListPaymentsByUser_InvalidPage(t *testing.T) {
	router, _ := testRouter()

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/user/"+validUserID+"?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// POST /api/v1/payments/{id}/capture
// ============================================================================

func TestCapturePayment_Success(t *testing.T) {
	router, repo := testRouter()

	processing := samplePayment()
	processing.Status = domain.PaymentStatusProcessing
	completed := samplePayment()
	completed.Status = domain.PaymentStatusCompleted

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CaptureableStatuses(), domain.PaymentStatusProcessing, mock.Anything).
		Return(processing, domain.PaymentStatusPending, nil)
	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		[]string{domain.PaymentStatusProcessing}, domain.PaymentStatusCompleted, mock.Anything).
		Return(completed, domain.PaymentStatusProcessing, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/capture", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestCapturePayment_Declined(t *testing.T) {
	router, repo := testRouter()

	// The deterministic provider declines amounts ending in 99.
	processing := samplePayment()
	processing.Amount = 1099
	processing.Status = domain.PaymentStatusProcessing
	failed := samplePayment()
	failed.Amount = 1099
	failed.Status = domain.PaymentStatusFailed
	failed.FailureReason = "card declined"

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CaptureableStatuses(), domain.PaymentStatusProcessing, mock.Anything).
		Return(processing, domain.PaymentStatusPending, nil)
	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		[]string{domain.PaymentStatusProcessing}, domain.PaymentStatusFailed, mock.Anything).
		Return(failed, domain.PaymentStatusProcessing, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/capture", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PAYMENT_FAILED", resp.Error.Code)
	repo.AssertExpectations(t)
}

func TestCapturePayment_AlreadyCompleted(t *testing.T) {
	router, repo := testRouter()

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CaptureableStatuses(), domain.PaymentStatusProcessing, mock.Anything).
		Return(nil, "", apperrors.Conflict("payment is completed, cannot transition to processing"))

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/capture", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================================================
// POST /api/v1/payments/{id}/cancel
// ============================================================================

func TestCancelPayment_Success(t *testing.T) {
	router, repo := testRouter()

	cancelled := samplePayment()
	cancelled.Status = domain.PaymentStatusCancelled

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CancellableStatuses(), domain.PaymentStatusCancelled,
		repository.StatusUpdate{Reason: "changed my mind"}).
		Return(cancelled, domain.PaymentStatusPending, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/cancel",
		CancelPaymentRequest{Reason: "changed my mind"})
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestCancelPayment_EmptyBody(t *testing.T) {
	router, repo := testRouter()

	cancelled := samplePayment()
	cancelled.Status = domain.PaymentStatusCancelled

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CancellableStatuses(), domain.PaymentStatusCancelled,
		repository.StatusUpdate{Reason: "cancelled by user"}).
		Return(cancelled, domain.PaymentStatusPending, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestCancelPayment_AlreadyCaptured(t *testing.T) {
	router, repo := testRouter()

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.CancellableStatuses(), domain.PaymentStatusCancelled, mock.Anything).
		Return(nil, "", apperrors.Conflict("payment is completed, cannot transition to cancelled"))

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ============================================================================
// POST /api/v1/payments/{id}/refunds
// ============================================================================

func TestCreateRefund_Success(t *testing.T) {
	router, repo := testRouter()

	refunding := samplePayment()
	refunding.Status = domain.PaymentStatusRefunding
	refunding.ProviderPayID = "prov-abc"
	refunded := samplePayment()
	refunded.Status = domain.PaymentStatusRefunded

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.RefundableStatuses(), domain.PaymentStatusRefunding, mock.Anything).
		Return(refunding, domain.PaymentStatusCompleted, nil)
	repo.On("SumCompletedRefunds", mock.Anything, validPaymentID).Return(int64(0), nil)
	repo.On("CreateRefund", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateRefund", mock.Anything, mock.MatchedBy(func(r *domain.Refund) bool {
		return r.Status == domain.RefundStatusCompleted
	})).Return(nil)
	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		[]string{domain.PaymentStatusRefunding}, domain.PaymentStatusRefunded, mock.Anything).
		Return(refunded, domain.PaymentStatusRefunding, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/refunds",
		CreateRefundRequest{Amount: 5000, Reason: "customer request"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	repo.AssertExpectations(t)
}

func TestCreateRefund_ExceedsBalance(t *testing.T) {
	router, repo := testRouter()

	refunding := samplePayment()
	refunding.Status = domain.PaymentStatusRefunding

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.RefundableStatuses(), domain.PaymentStatusRefunding, mock.Anything).
		Return(refunding, domain.PaymentStatusCompleted, nil)
	repo.On("SumCompletedRefunds", mock.Anything, validPaymentID).Return(int64(4500), nil)
	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		[]string{domain.PaymentStatusRefunding}, domain.PaymentStatusCompleted, mock.Anything).
		Return(samplePayment(), domain.PaymentStatusRefunding, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/refunds",
		CreateRefundRequest{Amount: 1000, Reason: "customer request"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRefund_RefundInProgress(t *testing.T) {
	router, repo := testRouter()

	repo.On("TransitionStatus", mock.Anything, validPaymentID,
		domain.RefundableStatuses(), domain.PaymentStatusRefunding, mock.Anything).
		Return(nil, "", apperrors.Conflict("payment is refunding, cannot transition to refunding"))

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/refunds",
		CreateRefundRequest{Amount: 1000, Reason: "customer request"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRefund_MissingReason(t *testing.T) {
	router, _ := testRouter()

	rec := doJSON(router, http.MethodPost, "/api/v1/payments/"+validPaymentID+"/refunds",
		CreateRefundRequest{Amount: 1000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// ============================================================================
// GET /api/v1/payments/{id}/refunds and /history
// ============================================================================

func TestListRefunds_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByID", mock.Anything, validPaymentID).Return(samplePayment(), nil)
	repo.On("ListRefundsByPaymentID", mock.Anything, validPaymentID).
		Return([]domain.Refund{{ID: "ref-1", PaymentID: validPaymentID, Amount: 1000}}, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/"+validPaymentID+"/refunds", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetHistory_Success(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByID", mock.Anything, validPaymentID).Return(samplePayment(), nil)
	repo.On("ListHistory", mock.Anything, validPaymentID).
		Return([]domain.StatusHistory{{ID: "h1", PaymentID: validPaymentID, NewStatus: domain.PaymentStatusPending}}, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/"+validPaymentID+"/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetHistory_PaymentNotFound(t *testing.T) {
	router, repo := testRouter()

	repo.On("GetByID", mock.Anything, validPaymentID).
		Return(nil, apperrors.NotFound("payment", validPaymentID))

	rec := doJSON(router, http.MethodGet, "/api/v1/payments/"+validPaymentID+"/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
