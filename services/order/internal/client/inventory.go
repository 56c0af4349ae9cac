package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quayside/commerce/pkg/httpclient"
)

// InventoryClient calls the inventory service over HTTP. Transport failures
// and 5xx responses trip a circuit breaker shared across calls.
type InventoryClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewInventoryClient creates an inventory client for the given base URL.
func NewInventoryClient(baseURL string, logger *slog.Logger) *InventoryClient {
	inner := httpclient.New(httpclient.DefaultConfig())
	cb := httpclient.NewCircuitBreakerClient(inner, httpclient.DefaultCircuitBreakerConfig("inventory"), logger)
	return &InventoryClient{
		http:    cb,
		baseURL: baseURL,
		logger:  logger,
	}
}

type confirmReservationRequest struct {
	ReferenceID string `json:"reference_id"`
}

type adjustStockRequest struct {
	Delta        int     `json:"delta"`
	MovementType string  `json:"movement_type"`
	Reason       string  `json:"reason"`
	ReferenceID  *string `json:"reference_id,omitempty"`
}

// ConfirmReservation converts a held reservation into a confirmed one,
// recording the order as the reference. Downstream errors are mapped to
// application errors, so callers see Conflict, Gone and NotFound directly.
func (c *InventoryClient) ConfirmReservation(ctx context.Context, reservationID, orderID string) error {
	body, err := json.Marshal(confirmReservationRequest{ReferenceID: orderID})
	if err != nil {
		return fmt.Errorf("marshal confirm reservation request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/reservations/%s/confirm", c.baseURL, reservationID)
	resp, err := c.http.Post(ctx, url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("confirm reservation %s: %w", reservationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "inventory")
	}
	return nil
}

// ReturnStock puts quantity back for a variant. Used for compensation when
// order creation fails after the reservation was already confirmed.
func (c *InventoryClient) ReturnStock(ctx context.Context, productID, variantID string, quantity int, reason, referenceID string) error {
	body, err := json.Marshal(adjustStockRequest{
		Delta:        quantity,
		MovementType: "increment",
		Reason:       reason,
		ReferenceID:  &referenceID,
	})
	if err != nil {
		return fmt.Errorf("marshal adjust stock request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inventory/%s/variants/%s", c.baseURL, productID, variantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build adjust stock request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("return stock for variant %s: %w", variantID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "inventory")
	}
	return nil
}
