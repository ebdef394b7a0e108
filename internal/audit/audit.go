// Package audit records who changed what. Entries are published to a Sink after the owning
// transaction commits; a publishing failure is logged and never fails the business operation.
package audit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ActionInventoryAdjust   = "inventory.adjust"
	ActionInventoryDeduct   = "inventory.deduct"
	ActionInventoryTransfer = "inventory.transfer"
	ActionOrderFulfill      = "order.fulfill"
	ActionUserBulkDelete    = "user.bulk_delete"
)

type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId"`
	BatchID    string         `json:"batchId,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Batch groups the entries of one logical user action.
type Batch struct {
	ID    string
	count atomic.Int64
	depth atomic.Int32
}

func (b *Batch) Count() int64 { return b.count.Load() }

type batchKey struct{}

// BatchID returns the id of the batch open on ctx, or "".
func BatchID(ctx context.Context) string {
	if b, ok := ctx.Value(batchKey{}).(*Batch); ok {
		return b.ID
	}
	return ""
}

type Recorder struct {
	sink   Sink
	logger logger.ZapLogger
	now    func() time.Time
}

func NewRecorder(sink Sink, log logger.ZapLogger) *Recorder {
	return &Recorder{
		sink:   sink,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// StartBatch opens a batch on ctx. When one is already open the caller joins it, and the batch
// closes with the outermost EndBatch.
func (r *Recorder) StartBatch(ctx context.Context) context.Context {
	if b, ok := ctx.Value(batchKey{}).(*Batch); ok {
		b.depth.Add(1)
		return ctx
	}
	b := &Batch{ID: uuid.NewString()}
	b.depth.Store(1)
	return context.WithValue(ctx, batchKey{}, b)
}

func (r *Recorder) EndBatch(ctx context.Context) {
	b, ok := ctx.Value(batchKey{}).(*Batch)
	if !ok {
		return
	}
	if b.depth.Add(-1) == 0 {
		r.logger.Debug("audit batch closed", zap.String("batch_id", b.ID), zap.Int64("entries", b.Count()))
	}
}

func (r *Recorder) Log(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if b, ok := ctx.Value(batchKey{}).(*Batch); ok {
		if entry.BatchID == "" {
			entry.BatchID = b.ID
		}
		b.count.Add(1)
	}

	if err := r.sink.Publish(ctx, entry); err != nil {
		r.logger.Warn("failed to publish audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}

func (r *Recorder) LogStockAdjustment(ctx context.Context, e model.InventoryLogEntry) {
	action := ActionInventoryAdjust
	if e.LogType == model.LogTypeDeduction {
		action = ActionInventoryDeduct
	}
	details := map[string]any{
		"productId":     e.ProductID,
		"locationId":    e.LocationID,
		"delta":         e.Delta,
		"quantityAfter": e.QuantityAfter,
		"logType":       e.LogType,
		"logId":         e.ID,
	}
	if e.Reason != nil {
		details["reason"] = *e.Reason
	}
	if e.Notes != nil {
		details["notes"] = *e.Notes
	}
	r.Log(ctx, Entry{
		Action:     action,
		EntityType: "product_location_stock",
		EntityID:   stockEntityID(e.ProductID, e.LocationID),
		UserID:     e.UserID,
		BatchID:    deref(e.BatchID),
		Details:    details,
	})
}

func (r *Recorder) LogInventoryTransfer(ctx context.Context, userID string, productID, fromLocationID, toLocationID, quantity int64, logs []model.InventoryLogEntry) {
	logIDs := make([]int64, 0, len(logs))
	batchID := ""
	for _, l := range logs {
		logIDs = append(logIDs, l.ID)
		if batchID == "" {
			batchID = deref(l.BatchID)
		}
	}
	r.Log(ctx, Entry{
		Action:     ActionInventoryTransfer,
		EntityType: "product",
		EntityID:   strconv.FormatInt(productID, 10),
		UserID:     userID,
		BatchID:    batchID,
		Details: map[string]any{
			"fromLocationId": fromLocationID,
			"toLocationId":   toLocationID,
			"quantity":       quantity,
			"logIds":         logIDs,
		},
	})
}

func (r *Recorder) LogOrderFulfillment(ctx context.Context, userID, orderID, status string, fulfilled, skipped, failed int) {
	r.Log(ctx, Entry{
		Action:     ActionOrderFulfill,
		EntityType: "external_order",
		EntityID:   orderID,
		UserID:     userID,
		Details: map[string]any{
			"fulfillmentStatus": status,
			"fulfilled":         fulfilled,
			"skipped":           skipped,
			"failed":            failed,
		},
	})
}

// LogBulkUserDeletion writes one entry per deleted user under a single batch.
func (r *Recorder) LogBulkUserDeletion(ctx context.Context, adminID string, userIDs []string) {
	ctx = r.StartBatch(ctx)
	defer r.EndBatch(ctx)
	for _, id := range userIDs {
		r.Log(ctx, Entry{
			Action:     ActionUserBulkDelete,
			EntityType: "user",
			EntityID:   id,
			UserID:     adminID,
			Details:    map[string]any{"total": len(userIDs)},
		})
	}
}

func stockEntityID(productID, locationID int64) string {
	return strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(locationID, 10)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
