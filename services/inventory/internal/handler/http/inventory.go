package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quayside/commerce/pkg/httputil"
	"github.com/quayside/commerce/pkg/validator"
	"github.com/quayside/commerce/services/inventory/internal/domain"
	"github.com/quayside/commerce/services/inventory/internal/service"
)

// InventoryHandler handles HTTP requests for inventory endpoints.
type InventoryHandler struct {
	service *service.InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// InitializeStockRequest is the JSON request body for creating/initializing stock.
type InitializeStockRequest struct {
	ProductID         string `json:"product_id" validate:"required,uuid"`
	VariantID         string `json:"variant_id" validate:"required,uuid"`
	Quantity          int    `json:"quantity" validate:"gte=0"`
	LowStockThreshold int    `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

// AdjustStockRequest is the JSON request body for adjusting stock.
type AdjustStockRequest struct {
	Delta        int     `json:"delta" validate:"required"`
	MovementType string  `json:"movement_type" validate:"required,oneof=increment decrement adjustment"`
	Reason       string  `json:"reason" validate:"required"`
	ReferenceID  *string `json:"reference_id" validate:"omitempty,min=1"`
}

// CreateReservationRequest is the JSON request body for reserving stock.
type CreateReservationRequest struct {
	OwnerID    string                   `json:"owner_id" validate:"required"`
	OwnerType  string                   `json:"owner_type" validate:"required,oneof=user guest"`
	SessionID  string                   `json:"session_id" validate:"omitempty"`
	Items      []ReservationItemRequest `json:"items" validate:"required,min=1,dive"`
	TTLSeconds int                      `json:"ttl_seconds" validate:"omitempty,gte=1"`
}

// ReservationItemRequest represents a single item in a reservation request.
type ReservationItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// ConfirmReservationRequest is the JSON request body for confirming a reservation.
type ConfirmReservationRequest struct {
	ReferenceID string `json:"reference_id" validate:"required"`
}

// CloseAlertRequest is the JSON request body for resolving or ignoring an alert.
type CloseAlertRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty,max=1000"`
}

// adjustStockResponse wraps the outcome of a stock adjustment.
type adjustStockResponse struct {
	Stock     *domain.Stock         `json:"stock"`
	Movement  *domain.StockMovement `json:"movement,omitempty"`
	Duplicate bool                  `json:"duplicate"`
}

// --- Stock handlers ---

// InitializeStock handles POST /api/v1/inventory
func (h *InventoryHandler) InitializeStock(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req InitializeStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lowStockThreshold := req.LowStockThreshold
	if lowStockThreshold == 0 {
		lowStockThreshold = 10 // sensible default
	}

	stock := &domain.Stock{
		ProductID:         req.ProductID,
		VariantID:         req.VariantID,
		Quantity:          req.Quantity,
		LowStockThreshold: lowStockThreshold,
	}

	result, err := h.service.InitializeStock(r.Context(), stock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: result})
}

// GetStock handles GET /api/v1/inventory/{productId}/variants/{variantId}
func (h *InventoryHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}
	variantID, ok := httputil.ParseUUID(w, chi.URLParam(r, "variantId"))
	if !ok {
		return
	}

	stock, err := h.service.GetStock(r.Context(), productID.String(), variantID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stock})
}

// AdjustStock handles PUT /api/v1/inventory/{productId}/variants/{variantId}
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}
	variantID, ok := httputil.ParseUUID(w, chi.URLParam(r, "variantId"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.AdjustStock(r.Context(), service.AdjustStockInput{
		ProductID:    productID.String(),
		VariantID:    variantID.String(),
		Delta:        req.Delta,
		MovementType: req.MovementType,
		Reason:       req.Reason,
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: adjustStockResponse{
		Stock:     result.Stock,
		Movement:  result.Movement,
		Duplicate: result.Duplicate,
	}})
}

// ListMovements handles GET /api/v1/inventory/{productId}/variants/{variantId}/movements
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}
	variantID, ok := httputil.ParseUUID(w, chi.URLParam(r, "variantId"))
	if !ok {
		return
	}

	page, perPage, ok := parsePagination(w, r)
	if !ok {
		return
	}

	movements, total, err := h.service.ListMovements(r.Context(), productID.String(), variantID.String(), page, perPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.StockMovement](movements, total, page, perPage))
}

// ListLowStock handles GET /api/v1/inventory/low-stock
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := parsePagination(w, r)
	if !ok {
		return
	}

	stocks, total, err := h.service.ListLowStock(r.Context(), page, perPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.Stock](stocks, total, page, perPage))
}

// --- Reservation handlers ---

// CreateReservation handles POST /api/v1/reservations
func (h *InventoryHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.CreateReservationInput{
		OwnerID:   req.OwnerID,
		OwnerType: req.OwnerType,
		SessionID: req.SessionID,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, service.ReservationItemInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	reservation, err := h.service.CreateReservation(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: reservation})
}

// GetReservation handles GET /api/v1/reservations/{id}
func (h *InventoryHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservation})
}

// ConfirmReservation handles POST /api/v1/reservations/{id}/confirm
func (h *InventoryHandler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ConfirmReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	reservation, err := h.service.ConfirmReservation(r.Context(), id.String(), req.ReferenceID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservation})
}

// CancelReservation handles POST /api/v1/reservations/{id}/cancel
func (h *InventoryHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.CancelReservation(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"reservation_id": id.String(),
		"status":         "cancelled",
	}})
}

// --- Alert handlers ---

// ListAlerts handles GET /api/v1/alerts
func (h *InventoryHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := parsePagination(w, r)
	if !ok {
		return
	}

	alerts, total, err := h.service.ListAlerts(r.Context(), page, perPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse[domain.InventoryAlert](alerts, total, page, perPage))
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve
func (h *InventoryHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.closeAlert(w, r, domain.AlertStatusResolved)
}

// IgnoreAlert handles POST /api/v1/alerts/{id}/ignore
func (h *InventoryHandler) IgnoreAlert(w http.ResponseWriter, r *http.Request) {
	h.closeAlert(w, r, domain.AlertStatusIgnored)
}

func (h *InventoryHandler) closeAlert(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CloseAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	var (
		alert *domain.InventoryAlert
		err   error
	)
	if status == domain.AlertStatusResolved {
		alert, err = h.service.ResolveAlert(r.Context(), id.String(), req.UserID, req.Notes)
	} else {
		alert, err = h.service.IgnoreAlert(r.Context(), id.String(), req.UserID, req.Notes)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: alert})
}

// --- Helpers ---

func parsePagination(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	page = 1
	perPage = 20

	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return 0, 0, false
		}
		page = p
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		pp, err := strconv.Atoi(v)
		if err != nil || pp < 1 || pp > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return 0, 0, false
		}
		perPage = pp
	}

	return page, perPage, true
}
