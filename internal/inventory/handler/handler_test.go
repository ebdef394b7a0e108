package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fekuna/omnipos-fulfillment-service/internal/audit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/notification"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthrough(next http.Handler) http.Handler { return next }

func newServer(t *testing.T, admin bool) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.AddProduct(model.Product{ID: 1, Name: "Widget"})
	store.AddLocation(model.Location{ID: 10, Name: "Main"})
	store.AddLocation(model.Location{ID: 20, Name: "Backroom"})
	store.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 10})
	store.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 20, Quantity: 0})

	log := logger.NewNop()
	uc := usecase.NewInventoryUseCase(store, store, audit.NewRecorder(audit.NewMemorySink(), log),
		notification.NewLogNotifier(log), log, usecase.Config{ConflictRetries: 2})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithUser(req.Context(), &auth.UserContext{UserID: "u-1", IsApproved: true, IsAdmin: admin})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewInventoryHandler(uc, log).RegisterRoutes(r, passthrough)
	return r, store
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, &buf))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestTransferEndpoint(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodPost, "/inventory/transfer", map[string]any{
		"productId": 1, "fromLocationId": 10, "toLocationId": 20, "quantity": 4,
	})

	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.EqualValues(t, 1, body["fromVersion"])
	assert.EqualValues(t, 1, body["toVersion"])
	assert.NotEmpty(t, body["batchId"])

	logs := body["logs"].([]any)
	require.Len(t, logs, 2)
	assert.EqualValues(t, -4, logs[0].(map[string]any)["delta"])
	assert.EqualValues(t, 4, logs[1].(map[string]any)["delta"])
	assert.Equal(t, "u-1", logs[0].(map[string]any)["userId"])
}

func TestTransferStaleVersion(t *testing.T) {
	h, store := newServer(t, false)
	store.SetStock(model.ProductLocationStock{ProductID: 1, LocationID: 10, Quantity: 10, Version: 3})

	rec, body := do(t, h, http.MethodPost, "/inventory/transfer", map[string]any{
		"productId": 1, "fromLocationId": 10, "toLocationId": 20, "quantity": 1, "expectedFromVersion": 2,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.EqualValues(t, 3, body["currentVersion"])
	assert.EqualValues(t, 2, body["expectedVersion"])
}

func TestTransferInsufficientStock(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodPost, "/inventory/transfer", map[string]any{
		"productId": 1, "fromLocationId": 10, "toLocationId": 20, "quantity": 15,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 10, body["currentQuantity"])
	assert.EqualValues(t, 15, body["requestedQuantity"])
	assert.EqualValues(t, 5, body["shortfall"])
}

func TestAdjustEndpoint(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodPost, "/inventory/adjust", map[string]any{
		"productId": 1, "locationId": 10, "delta": -3, "reason": "damaged", "expectedVersion": 0,
	})

	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.EqualValues(t, 7, body["newQuantity"])
	assert.EqualValues(t, 1, body["newVersion"])
}

func TestAdjustRejectsUnknownFields(t *testing.T) {
	h, _ := newServer(t, false)

	rec, _ := do(t, h, http.MethodPost, "/inventory/adjust", map[string]any{
		"productId": 1, "locationId": 10, "qty": 3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodGet, "/inventory/availability?productId=1&locationId=10&quantity=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["isValid"])
	assert.EqualValues(t, 2, body["shortfall"])

	rec, _ = do(t, h, http.MethodGet, "/inventory/availability?productId=1&quantity=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStockEndpoint(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodGet, "/inventory/products/1/stock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["stock"], 2)

	rec, _ = do(t, h, http.MethodGet, "/inventory/products/999/stock", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/inventory/products/abc/stock", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLogsEndpoint(t *testing.T) {
	h, _ := newServer(t, true)

	_, transfer := do(t, h, http.MethodPost, "/inventory/transfer", map[string]any{
		"productId": 1, "fromLocationId": 10, "toLocationId": 20, "quantity": 2,
	})
	batchID := transfer["batchId"].(string)

	rec, body := do(t, h, http.MethodGet, "/inventory/logs?batchId="+batchID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["logs"], 2)

	rec, _ = do(t, h, http.MethodGet, "/inventory/logs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLogsRequiresAdmin(t *testing.T) {
	h, _ := newServer(t, false)

	rec, body := do(t, h, http.MethodGet, "/inventory/logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin role required", body["error"])
}
