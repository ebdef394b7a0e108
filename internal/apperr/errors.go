// Package apperr holds the error taxonomy shared by the usecases and transports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// InsufficientStockError is returned when a mutation would drive a stock row below zero.
type InsufficientStockError struct {
	ProductID         int64 `json:"productId"`
	LocationID        int64 `json:"locationId"`
	CurrentQuantity   int64 `json:"currentQuantity"`
	RequestedQuantity int64 `json:"requestedQuantity"`
	Shortfall         int64 `json:"shortfall"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d at location %d: only %d available, %d requested",
		e.ProductID, e.LocationID, e.CurrentQuantity, e.RequestedQuantity)
}

func NewInsufficientStock(productID, locationID, current, requested int64) *InsufficientStockError {
	shortfall := requested - current
	if shortfall < 0 {
		shortfall = 0
	}
	return &InsufficientStockError{
		ProductID:         productID,
		LocationID:        locationID,
		CurrentQuantity:   current,
		RequestedQuantity: requested,
		Shortfall:         shortfall,
	}
}

// OptimisticLockError reports a version mismatch or a lost compare-and-swap race.
type OptimisticLockError struct {
	ProductID       int64 `json:"productId"`
	LocationID      int64 `json:"locationId"`
	CurrentVersion  int64 `json:"currentVersion"`
	ExpectedVersion int64 `json:"expectedVersion"`
	// Explicit is true when ExpectedVersion came from the caller rather than from our own read.
	Explicit bool `json:"-"`
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("stock for product %d at location %d was modified concurrently (current version %d, expected %d)",
		e.ProductID, e.LocationID, e.CurrentVersion, e.ExpectedVersion)
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func Conflict(message string) error {
	return &ConflictError{Message: message}
}

type UnauthorizedError struct {
	Message string
	// Forbidden marks an authenticated caller lacking approval or role.
	Forbidden bool
}

func (e *UnauthorizedError) Error() string { return e.Message }

func Unauthorized(message string) error {
	return &UnauthorizedError{Message: message}
}

func Forbidden(message string) error {
	return &UnauthorizedError{Message: message, Forbidden: true}
}

type RateLimitError struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded"
}

// InternalError wraps unexpected store or infrastructure failures. Its message is never shown to clients.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Internal wraps err unless it already belongs to the taxonomy.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsDomain reports whether err is one of the typed, client-facing errors.
func IsDomain(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		is *InsufficientStockError
		ol *OptimisticLockError
		ce *ConflictError
		ue *UnauthorizedError
		rl *RateLimitError
		ie *InternalError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &is) || errors.As(err, &ol) ||
		errors.As(err, &ce) || errors.As(err, &ue) || errors.As(err, &rl) || errors.As(err, &ie)
}

// IsRetryableConflict reports a lock conflict that the caller did not pin to an explicit version.
func IsRetryableConflict(err error) bool {
	var ol *OptimisticLockError
	if errors.As(err, &ol) {
		return !ol.Explicit
	}
	return false
}

func HTTPStatus(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		is *InsufficientStockError
		ol *OptimisticLockError
		ce *ConflictError
		ue *UnauthorizedError
		rl *RateLimitError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &is):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ol), errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ue):
		if ue.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
