// Package httpx holds the JSON helpers shared by the chi handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

type ErrorBody struct {
	Error string `json:"error"`

	CurrentVersion  *int64 `json:"currentVersion,omitempty"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`

	CurrentQuantity   *int64 `json:"currentQuantity,omitempty"`
	RequestedQuantity *int64 `json:"requestedQuantity,omitempty"`
	Shortfall         *int64 `json:"shortfall,omitempty"`

	Limit     *int       `json:"limit,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	ResetAt   *time.Time `json:"resetAt,omitempty"`
}

func Respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RespondError writes the JSON body for err. Internal causes are logged and replaced by a generic message.
func RespondError(w http.ResponseWriter, r *http.Request, log logger.ZapLogger, err error) {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{Error: err.Error()}

	var (
		ol *apperr.OptimisticLockError
		is *apperr.InsufficientStockError
		rl *apperr.RateLimitError
	)
	switch {
	case errors.As(err, &ol):
		body.CurrentVersion = &ol.CurrentVersion
		body.ExpectedVersion = &ol.ExpectedVersion
	case errors.As(err, &is):
		body.CurrentQuantity = &is.CurrentQuantity
		body.RequestedQuantity = &is.RequestedQuantity
		body.Shortfall = &is.Shortfall
	case errors.As(err, &rl):
		body.Limit = &rl.Limit
		body.Remaining = &rl.Remaining
		body.ResetAt = &rl.ResetAt
		if wait := time.Until(rl.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		body.Error = "internal server error"
	}

	Respond(w, status, body)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("", "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("", fmt.Sprintf("invalid request body: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("", "request body must contain a single JSON object")
	}
	return nil
}

// QueryInt64 parses an optional int64 query parameter. ok is false when the parameter is absent.
func QueryInt64(r *http.Request, name string) (value int64, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, apperr.Validation(name, "must be an integer")
	}
	return v, true, nil
}

// RequireInt64 is QueryInt64 for mandatory parameters.
func RequireInt64(r *http.Request, name string) (int64, error) {
	v, ok, err := QueryInt64(r, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.Validation(name, "is required")
	}
	return v, nil
}

// ParamInt64 parses an int64 route parameter value.
func ParamInt64(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation(name, "must be an integer")
	}
	return v, nil
}
