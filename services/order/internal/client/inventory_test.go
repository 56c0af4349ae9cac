package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quayside/commerce/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestConfirmReservation_Success(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"res-1","status":"confirmed"}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(srv.URL, testLogger())

	err := c.ConfirmReservation(context.Background(), "res-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/reservations/res-1/confirm", gotPath)
	assert.Equal(t, "order-1", gotBody["reference_id"])
}

func TestConfirmReservation_Expired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":"GONE","message":"reservation res-1 has expired"}}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(srv.URL, testLogger())

	err := c.ConfirmReservation(context.Background(), "res-1", "order-1")
	assert.ErrorIs(t, err, apperrors.ErrGone)
}

func TestConfirmReservation_AlreadyConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"CONFLICT","message":"reservation res-1 is confirmed"}}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(srv.URL, testLogger())

	err := c.ConfirmReservation(context.Background(), "res-1", "order-1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestReturnStock_Success(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"product_id":"prod-1"}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(srv.URL, testLogger())

	err := c.ReturnStock(context.Background(), "prod-1", "var-1", 2, "order creation failed", "order-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/v1/inventory/prod-1/variants/var-1", gotPath)
	assert.Equal(t, float64(2), gotBody["delta"])
	assert.Equal(t, "increment", gotBody["movement_type"])
	assert.Equal(t, "order creation failed", gotBody["reason"])
	assert.Equal(t, "order-1", gotBody["reference_id"])
}

func TestReturnStock_VariantNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"stock not found"}}`))
	}))
	defer srv.Close()

	c := NewInventoryClient(srv.URL, testLogger())

	err := c.ReturnStock(context.Background(), "prod-1", "var-1", 2, "order creation failed", "order-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
