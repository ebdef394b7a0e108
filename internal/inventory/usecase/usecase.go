package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/audit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/notification"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/tracing"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

type Config struct {
	// ConflictRetries bounds the re-runs of a mutation that lost a race without a caller-pinned version.
	ConflictRetries int
}

type inventoryUseCase struct {
	repo     inventory.Repository
	txm      storage.TxManager
	recorder *audit.Recorder
	notifier notification.Notifier
	logger   logger.ZapLogger
	tracer   trace.Tracer
	cfg      Config
}

func NewInventoryUseCase(repo inventory.Repository, txm storage.TxManager, recorder *audit.Recorder, notifier notification.Notifier, log logger.ZapLogger, cfg Config) inventory.UseCase {
	return &inventoryUseCase{
		repo:     repo,
		txm:      txm,
		recorder: recorder,
		notifier: notifier,
		logger:   log,
		tracer:   otel.Tracer(tracing.ServiceName),
		cfg:      cfg,
	}
}

// plannedMutation is one row change of a unit of work.
type plannedMutation struct {
	key     model.StockKey
	delta   int64
	logType model.LogType
	// onCreate replaces logType when the row did not exist before this mutation.
	onCreate        model.LogType
	expectedVersion *int64
	reason          *string
	notes           *string
}

type appliedMutation struct {
	row     model.ProductLocationStock
	created bool
}

func (uc *inventoryUseCase) Adjust(ctx context.Context, input *dto.AdjustInput) (*dto.MutationResult, error) {
	if err := validateRefs(input.ProductID, input.LocationID); err != nil {
		return nil, err
	}
	if input.Delta == 0 {
		return nil, apperr.Validation("delta", "must not be zero")
	}
	if input.UserID == "" {
		return nil, apperr.Validation("userId", "is required")
	}

	ctx, span := uc.tracer.Start(ctx, "inventory.Adjust", trace.WithAttributes(
		attribute.Int64("product.id", input.ProductID),
		attribute.Int64("location.id", input.LocationID),
		attribute.Int64("delta", input.Delta),
	))
	defer span.End()

	var result *dto.MutationResult
	err := uc.run(ctx, func(ctx context.Context) error {
		product, err := uc.requireRefs(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}

		logs, applied, err := uc.apply(ctx, input.UserID, []plannedMutation{{
			key:             model.StockKey{ProductID: input.ProductID, LocationID: input.LocationID},
			delta:           input.Delta,
			logType:         model.LogTypeAdjustment,
			expectedVersion: input.ExpectedVersion,
			reason:          optional(input.Reason),
			notes:           optional(input.Notes),
		}})
		if err != nil {
			return err
		}

		entry := logs[0]
		storage.AfterCommit(ctx, func(ctx context.Context) {
			uc.recorder.LogStockAdjustment(ctx, entry)
			if input.Delta < 0 {
				uc.checkLowStock(ctx, product, input.LocationID)
			}
		})

		result = &dto.MutationResult{
			NewQuantity: applied[0].row.Quantity,
			NewVersion:  applied[0].row.Version,
			LogID:       entry.ID,
			Log:         entry,
		}
		return nil
	})
	if err != nil {
		return nil, uc.fail(span, "adjust stock", err)
	}

	span.SetStatus(codes.Ok, "stock adjusted")
	return result, nil
}

func (uc *inventoryUseCase) Transfer(ctx context.Context, input *dto.TransferInput) (*dto.TransferResult, error) {
	if err := validateRefs(input.ProductID, input.FromLocationID); err != nil {
		return nil, err
	}
	if input.ToLocationID <= 0 {
		return nil, apperr.Validation("toLocationId", "must be positive")
	}
	if input.FromLocationID == input.ToLocationID {
		return nil, apperr.Validation("toLocationId", "must differ from fromLocationId")
	}
	if input.Quantity <= 0 {
		return nil, apperr.Validation("quantity", "must be positive")
	}
	if input.UserID == "" {
		return nil, apperr.Validation("userId", "is required")
	}

	ctx = uc.recorder.StartBatch(ctx)
	defer uc.recorder.EndBatch(ctx)

	ctx, span := uc.tracer.Start(ctx, "inventory.Transfer", trace.WithAttributes(
		attribute.Int64("product.id", input.ProductID),
		attribute.Int64("location.from", input.FromLocationID),
		attribute.Int64("location.to", input.ToLocationID),
		attribute.Int64("quantity", input.Quantity),
		attribute.String("batch.id", audit.BatchID(ctx)),
	))
	defer span.End()

	var result *dto.TransferResult
	err := uc.run(ctx, func(ctx context.Context) error {
		if _, err := uc.requireRefs(ctx, input.ProductID, input.FromLocationID, input.ToLocationID); err != nil {
			return err
		}

		notes := optional(input.Notes)
		logs, applied, err := uc.apply(ctx, input.UserID, []plannedMutation{
			{
				key:             model.StockKey{ProductID: input.ProductID, LocationID: input.FromLocationID},
				delta:           -input.Quantity,
				logType:         model.LogTypeTransfer,
				expectedVersion: input.ExpectedFromVersion,
				notes:           notes,
			},
			{
				key:             model.StockKey{ProductID: input.ProductID, LocationID: input.ToLocationID},
				delta:           input.Quantity,
				logType:         model.LogTypeTransfer,
				onCreate:        model.LogTypeAutoAdjust,
				expectedVersion: input.ExpectedToVersion,
				notes:           notes,
			},
		})
		if err != nil {
			return err
		}

		storage.AfterCommit(ctx, func(ctx context.Context) {
			uc.recorder.LogInventoryTransfer(ctx, input.UserID, input.ProductID, input.FromLocationID, input.ToLocationID, input.Quantity, logs)
		})

		result = &dto.TransferResult{
			FromVersion:  applied[0].row.Version,
			ToVersion:    applied[1].row.Version,
			FromQuantity: applied[0].row.Quantity,
			ToQuantity:   applied[1].row.Quantity,
			Logs:         logs,
			BatchID:      audit.BatchID(ctx),
		}
		return nil
	})
	if err != nil {
		return nil, uc.fail(span, "transfer stock", err)
	}

	span.SetStatus(codes.Ok, "stock transferred")
	return result, nil
}

func (uc *inventoryUseCase) Deduct(ctx context.Context, input *dto.DeductInput) (*dto.MutationResult, error) {
	if err := validateRefs(input.ProductID, input.LocationID); err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, apperr.Validation("quantity", "must be positive")
	}
	if input.UserID == "" {
		return nil, apperr.Validation("userId", "is required")
	}

	ctx, span := uc.tracer.Start(ctx, "inventory.Deduct", trace.WithAttributes(
		attribute.Int64("product.id", input.ProductID),
		attribute.Int64("location.id", input.LocationID),
		attribute.Int64("quantity", input.Quantity),
		attribute.String("order.id", input.Context.OrderID),
	))
	defer span.End()

	var reason *string
	if input.Context.OrderID != "" {
		reason = optional(fmt.Sprintf("order %s item %s", input.Context.OrderID, input.Context.ItemID))
	}

	var result *dto.MutationResult
	err := uc.run(ctx, func(ctx context.Context) error {
		product, err := uc.requireRefs(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}

		logs, applied, err := uc.apply(ctx, input.UserID, []plannedMutation{{
			key:     model.StockKey{ProductID: input.ProductID, LocationID: input.LocationID},
			delta:   -input.Quantity,
			logType: model.LogTypeDeduction,
			reason:  reason,
			notes:   optional(input.Context.Notes),
		}})
		if err != nil {
			return err
		}

		entry := logs[0]
		storage.AfterCommit(ctx, func(ctx context.Context) {
			uc.recorder.LogStockAdjustment(ctx, entry)
			uc.checkLowStock(ctx, product, input.LocationID)
		})

		result = &dto.MutationResult{
			NewQuantity: applied[0].row.Quantity,
			NewVersion:  applied[0].row.Version,
			LogID:       entry.ID,
			Log:         entry,
		}
		return nil
	})
	if err != nil {
		return nil, uc.fail(span, "deduct stock", err)
	}

	span.SetStatus(codes.Ok, "stock deducted")
	return result, nil
}

// run executes fn in a transaction, re-running it on implicit version conflicts.
func (uc *inventoryUseCase) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return inventory.RetryOnConflict(ctx, uc.cfg.ConflictRetries, func(ctx context.Context) error {
		return uc.txm.WithTransaction(ctx, fn)
	})
}

func (uc *inventoryUseCase) fail(span trace.Span, op string, err error) error {
	err = apperr.Internal(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var ie *apperr.InternalError
	if errors.As(err, &ie) {
		uc.logger.Error("inventory mutation failed", zap.String("op", op), zap.Error(ie.Err))
	} else {
		uc.logger.Debug("inventory mutation rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

// apply updates the rows in key order and then writes one log entry per mutation in plan order.
func (uc *inventoryUseCase) apply(ctx context.Context, userID string, plan []plannedMutation) ([]model.InventoryLogEntry, []appliedMutation, error) {
	order := make([]int, len(plan))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return plan[order[a]].key.Less(plan[order[b]].key) })

	applied := make([]appliedMutation, len(plan))
	for _, i := range order {
		row, created, err := uc.applyOne(ctx, plan[i])
		if err != nil {
			return nil, nil, err
		}
		applied[i] = appliedMutation{row: *row, created: created}
	}

	batchID := optional(audit.BatchID(ctx))
	logs := make([]model.InventoryLogEntry, 0, len(plan))
	for i, m := range plan {
		logType := m.logType
		if applied[i].created && m.onCreate != "" {
			logType = m.onCreate
		}
		entry := model.InventoryLogEntry{
			ProductID:     m.key.ProductID,
			LocationID:    m.key.LocationID,
			Delta:         m.delta,
			QuantityAfter: applied[i].row.Quantity,
			LogType:       logType,
			UserID:        userID,
			BatchID:       batchID,
			Reason:        m.reason,
			Notes:         m.notes,
		}
		if err := uc.repo.InsertLog(ctx, &entry); err != nil {
			return nil, nil, fmt.Errorf("insert inventory log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, applied, nil
}

// applyOne reads the row, checks the caller's version and non-negativity, then writes through a
// version-guarded compare-and-swap.
func (uc *inventoryUseCase) applyOne(ctx context.Context, m plannedMutation) (*model.ProductLocationStock, bool, error) {
	row, err := uc.repo.GetStock(ctx, m.key)
	if err != nil {
		return nil, false, fmt.Errorf("get stock: %w", err)
	}

	created := false
	if row == nil {
		if m.expectedVersion != nil && *m.expectedVersion != 0 {
			return nil, false, &apperr.OptimisticLockError{
				ProductID:       m.key.ProductID,
				LocationID:      m.key.LocationID,
				CurrentVersion:  0,
				ExpectedVersion: *m.expectedVersion,
				Explicit:        true,
			}
		}
		if m.delta < 0 {
			return nil, false, apperr.NewInsufficientStock(m.key.ProductID, m.key.LocationID, 0, -m.delta)
		}
		row, created, err = uc.repo.EnsureStock(ctx, m.key)
		if err != nil {
			return nil, false, fmt.Errorf("ensure stock: %w", err)
		}
	}

	if m.expectedVersion != nil && *m.expectedVersion != row.Version {
		return nil, false, &apperr.OptimisticLockError{
			ProductID:       m.key.ProductID,
			LocationID:      m.key.LocationID,
			CurrentVersion:  row.Version,
			ExpectedVersion: *m.expectedVersion,
			Explicit:        true,
		}
	}

	newQuantity := row.Quantity + m.delta
	if newQuantity < 0 {
		return nil, false, apperr.NewInsufficientStock(m.key.ProductID, m.key.LocationID, row.Quantity, -m.delta)
	}

	ok, newVersion, err := uc.repo.CompareAndSwap(ctx, m.key, row.Version, newQuantity)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		current, err := uc.repo.GetStock(ctx, m.key)
		if err != nil {
			return nil, false, fmt.Errorf("reload stock after conflict: %w", err)
		}
		lockErr := &apperr.OptimisticLockError{
			ProductID:       m.key.ProductID,
			LocationID:      m.key.LocationID,
			ExpectedVersion: row.Version,
			Explicit:        m.expectedVersion != nil,
		}
		if current != nil {
			lockErr.CurrentVersion = current.Version
		}
		return nil, false, lockErr
	}

	row.Quantity = newQuantity
	row.Version = newVersion
	return row, created, nil
}

// requireRefs loads the product and checks that every location exists.
func (uc *inventoryUseCase) requireRefs(ctx context.Context, productID int64, locationIDs ...int64) (*model.Product, error) {
	product, err := uc.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	for _, id := range locationIDs {
		if _, err := uc.GetLocation(ctx, id); err != nil {
			return nil, err
		}
	}
	return product, nil
}

// checkLowStock publishes a notification when the product's combined stock is at or below its
// threshold. It runs after commit, so failures are only logged.
func (uc *inventoryUseCase) checkLowStock(ctx context.Context, product *model.Product, locationID int64) {
	if product.LowStockThreshold <= 0 {
		return
	}
	total, err := uc.repo.TotalQuantity(ctx, product.ID)
	if err != nil {
		uc.logger.Warn("failed to read total stock", zap.Int64("product_id", product.ID), zap.Error(err))
		return
	}
	if total > product.LowStockThreshold {
		return
	}

	event := notification.LowStockEvent{
		ProductID:     product.ID,
		ProductName:   product.Name,
		LocationID:    locationID,
		TotalQuantity: total,
		Threshold:     product.LowStockThreshold,
		OccurredAt:    time.Now().UTC(),
	}
	if err := uc.notifier.NotifyLowStock(ctx, event); err != nil {
		uc.logger.Warn("failed to send low stock notification", zap.Int64("product_id", product.ID), zap.Error(err))
	}
}

func (uc *inventoryUseCase) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := uc.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return nil, apperr.NotFound("product", id)
	}
	return p, nil
}

func (uc *inventoryUseCase) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	l, err := uc.repo.GetLocation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	if l == nil {
		return nil, apperr.NotFound("location", id)
	}
	return l, nil
}

func (uc *inventoryUseCase) ListStock(ctx context.Context, productID int64) ([]model.ProductLocationStock, error) {
	if _, err := uc.GetProduct(ctx, productID); err != nil {
		return nil, apperr.Internal("list stock", err)
	}
	rows, err := uc.repo.ListStockByProduct(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("list stock", err)
	}
	return rows, nil
}

func (uc *inventoryUseCase) ListLogs(ctx context.Context, filters *dto.LogFilters) ([]model.InventoryLogEntry, error) {
	f := *filters
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLogLimit
	case f.Limit > maxLogLimit:
		f.Limit = maxLogLimit
	}
	logs, err := uc.repo.ListLogs(ctx, &f)
	if err != nil {
		return nil, apperr.Internal("list inventory logs", err)
	}
	return logs, nil
}

func validateRefs(productID, locationID int64) error {
	if productID <= 0 {
		return apperr.Validation("productId", "must be positive")
	}
	if locationID <= 0 {
		return apperr.Validation("locationId", "must be positive")
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
