package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-fulfillment-service/internal/auth"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
)

type FulfillmentHandler struct {
	uc     fulfillment.UseCase
	logger logger.ZapLogger
}

func NewFulfillmentHandler(uc fulfillment.UseCase, log logger.ZapLogger) *FulfillmentHandler {
	return &FulfillmentHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *FulfillmentHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/orders/{orderId}", func(r chi.Router) {
		r.With(limit).Post("/fulfill", h.Fulfill)
		r.Get("/fulfillment/validate", h.Validate)
	})
}

type fulfillItemRequest struct {
	ItemID       string `json:"itemId"`
	Quantity     int64  `json:"quantity"`
	ProductID    *int64 `json:"productId"`
	SkipUnmapped bool   `json:"skipUnmapped"`
}

type fulfillRequest struct {
	LocationID int64                `json:"locationId"`
	Items      []fulfillItemRequest `json:"items"`
	Notes      string               `json:"notes"`
}

func (h *FulfillmentHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	items := make([]dto.FulfillItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = dto.FulfillItemInput{
			ItemID:       it.ItemID,
			Quantity:     it.Quantity,
			ProductID:    it.ProductID,
			SkipUnmapped: it.SkipUnmapped,
		}
	}

	res, err := h.uc.FulfillExternalOrder(r.Context(), &dto.FulfillInput{
		OrderID:    chi.URLParam(r, "orderId"),
		LocationID: req.LocationID,
		Items:      items,
		UserID:     auth.GetUserID(r.Context()),
		Notes:      req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}

// Validate previews a fulfillment. locationId is optional; without it no stock check is made.
func (h *FulfillmentHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var locationID *int64
	v, ok, err := httpx.QueryInt64(r, "locationId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if ok {
		locationID = &v
	}

	res, err := h.uc.ValidateOrderFulfillment(r.Context(), chi.URLParam(r, "orderId"), locationID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.Respond(w, http.StatusOK, res)
}
