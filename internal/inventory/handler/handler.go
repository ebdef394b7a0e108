package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

// RegisterRoutes mounts the inventory endpoints. limit wraps the mutating routes; the log listing is admin only.
func (h *InventoryHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/inventory", func(r chi.Router) {
		r.With(limit).Post("/transfer", h.Transfer)
		r.With(limit).Post("/adjust", h.Adjust)
		r.Get("/availability", h.Availability)
		r.Get("/products/{productId}/stock", h.ListStock)
		r.With(auth.RequireAdmin(h.logger)).Get("/logs", h.ListLogs)
	})
}

type transferRequest struct {
	ProductID           int64  `json:"productId"`
	FromLocationID      int64  `json:"fromLocationId"`
	ToLocationID        int64  `json:"toLocationId"`
	Quantity            int64  `json:"quantity"`
	Notes               string `json:"notes"`
	ExpectedFromVersion *int64 `json:"expectedFromVersion"`
	ExpectedToVersion   *int64 `json:"expectedToVersion"`
}

type adjustRequest struct {
	ProductID       int64  `json:"productId"`
	LocationID      int64  `json:"locationId"`
	Delta           int64  `json:"delta"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

func (h *InventoryHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	res, err := h.uc.Transfer(r.Context(), &dto.TransferInput{
		ProductID:           req.ProductID,
		FromLocationID:      req.FromLocationID,
		ToLocationID:        req.ToLocationID,
		Quantity:            req.Quantity,
		UserID:              auth.GetUserID(r.Context()),
		Notes:               req.Notes,
		ExpectedFromVersion: req.ExpectedFromVersion,
		ExpectedToVersion:   req.ExpectedToVersion,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	res, err := h.uc.Adjust(r.Context(), &dto.AdjustInput{
		ProductID:       req.ProductID,
		LocationID:      req.LocationID,
		Delta:           req.Delta,
		UserID:          auth.GetUserID(r.Context()),
		Reason:          req.Reason,
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.RequireInt64(r, "productId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	locationID, err := httpx.RequireInt64(r, "locationId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	quantity, err := httpx.RequireInt64(r, "quantity")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	res, err := h.uc.ValidateStockAvailability(r.Context(), productID, locationID, quantity)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

func (h *InventoryHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.ParamInt64("productId", chi.URLParam(r, "productId"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	rows, err := h.uc.ListStock(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if rows == nil {
		rows = []model.ProductLocationStock{}
	}
	httpx.Respond(w, http.StatusOK, map[string]any{"productId": productID, "stock": rows})
}

func (h *InventoryHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filters := &dto.LogFilters{BatchID: r.URL.Query().Get("batchId")}

	var err error
	if filters.ProductID, _, err = httpx.QueryInt64(r, "productId"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if filters.LocationID, _, err = httpx.QueryInt64(r, "locationId"); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	limit, _, err := httpx.QueryInt64(r, "limit")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if limit < 0 {
		httpx.RespondError(w, r, h.logger, apperr.Validation("limit", "must not be negative"))
		return
	}
	filters.Limit = int(limit)

	logs, err := h.uc.ListLogs(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if logs == nil {
		logs = []model.InventoryLogEntry{}
	}
	httpx.Respond(w, http.StatusOK, map[string]any{"logs": logs})
}
