package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/audit"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/tracing"
	"github.com/fekuna/omnipos-fulfillment-service/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const lockKeyPrefix = "lock:fulfillment:order:"

type Config struct {
	OrderLockTTL    time.Duration
	ConflictRetries int
}

type fulfillmentUseCase struct {
	repo      fulfillment.Repository
	inventory inventory.UseCase
	txm       storage.TxManager
	recorder  *audit.Recorder
	locker    fulfillment.Locker
	logger    logger.ZapLogger
	tracer    trace.Tracer
	cfg       Config
	now       func() time.Time
}

// NewFulfillmentUseCase wires the orchestrator. A nil locker disables cross-instance order locking.
func NewFulfillmentUseCase(repo fulfillment.Repository, inv inventory.UseCase, txm storage.TxManager, recorder *audit.Recorder, locker fulfillment.Locker, log logger.ZapLogger, cfg Config) fulfillment.UseCase {
	return &fulfillmentUseCase{
		repo:      repo,
		inventory: inv,
		txm:       txm,
		recorder:  recorder,
		locker:    locker,
		logger:    log,
		tracer:    otel.Tracer(tracing.ServiceName),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// resolution is the outcome of mapping one order line to internal stock. The line is ready for
// deduction when neither skip nor fail is set.
type resolution struct {
	item    *model.ExternalOrderItem
	product *model.Product
	skip    string
	fail    string
}

func (r *resolution) productID() *int64 {
	if r.product == nil {
		return nil
	}
	id := r.product.ID
	return &id
}

// resolveItem holds the rules shared by fulfillment and its preview. An explicit product wins over
// the line's link.
func (uc *fulfillmentUseCase) resolveItem(ctx context.Context, orderID, itemID string, override *int64, skipUnmapped bool) (*resolution, error) {
	item, err := uc.repo.GetItem(ctx, orderID, itemID)
	if err != nil {
		return nil, fmt.Errorf("get order item: %w", err)
	}
	if item == nil {
		return &resolution{fail: dto.ReasonItemNotFound}, nil
	}

	var productID int64
	switch {
	case override != nil:
		productID = *override
	case item.ProductLinkID != nil:
		link, err := uc.repo.GetProductLink(ctx, *item.ProductLinkID)
		if err != nil {
			return nil, fmt.Errorf("get product link: %w", err)
		}
		if link != nil {
			productID = link.ProductID
		}
	}
	if productID == 0 {
		if skipUnmapped {
			return &resolution{item: item, skip: dto.ReasonUnmappedProduct}, nil
		}
		return &resolution{item: item, fail: dto.ReasonUnmappedProduct}, nil
	}

	product, err := uc.inventory.GetProduct(ctx, productID)
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return &resolution{item: item, fail: nf.Error()}, nil
		}
		return nil, err
	}

	if item.Remaining() == 0 {
		return &resolution{item: item, product: product, skip: dto.ReasonAlreadyFulfilled}, nil
	}
	return &resolution{item: item, product: product}, nil
}

func (uc *fulfillmentUseCase) FulfillExternalOrder(ctx context.Context, input *dto.FulfillInput) (*dto.FulfillResult, error) {
	if err := validateFulfillInput(input); err != nil {
		return nil, err
	}

	ctx, span := uc.tracer.Start(ctx, "fulfillment.FulfillExternalOrder", trace.WithAttributes(
		attribute.String("order.id", input.OrderID),
		attribute.Int64("location.id", input.LocationID),
		attribute.Int("items", len(input.Items)),
	))
	defer span.End()

	release, err := uc.lockOrder(ctx, input.OrderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	order, err := uc.loadOrder(ctx, input.OrderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := uc.inventory.GetLocation(ctx, input.LocationID); err != nil {
		return nil, apperr.Internal("fulfill order", err)
	}

	ctx = uc.recorder.StartBatch(ctx)
	defer uc.recorder.EndBatch(ctx)

	results := dto.NewResults()
	logs := []model.InventoryLogEntry{}
	for _, in := range input.Items {
		entry, err := uc.fulfillItem(ctx, order.ID, input, in, &results)
		if err != nil {
			err = apperr.Internal("fulfill order item", err)
			uc.logger.Error("fulfillment aborted",
				zap.String("order_id", order.ID),
				zap.String("item_id", in.ItemID),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "fulfillment aborted")
			return nil, err
		}
		if entry != nil {
			logs = append(logs, *entry)
		}
	}

	status := results.Status()
	orderStatus, err := uc.settleOrder(ctx, order, status, input.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("update order status", err)
	}

	summary := results.Summary()
	uc.recorder.LogOrderFulfillment(ctx, input.UserID, order.ID, status, summary.Fulfilled, summary.Skipped, summary.Failed)
	uc.logger.Info("order fulfillment processed",
		zap.String("order_id", order.ID),
		zap.String("status", status),
		zap.Int("fulfilled", summary.Fulfilled),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	span.SetAttributes(attribute.String("fulfillment.status", status))
	span.SetStatus(codes.Ok, "fulfillment processed")

	return &dto.FulfillResult{
		OrderID:           order.ID,
		OrderStatus:       orderStatus,
		FulfillmentStatus: status,
		Results:           results,
		InventoryLogs:     logs,
		Summary:           summary,
		BatchID:           audit.BatchID(ctx),
	}, nil
}

// fulfillItem deducts one line in its own transaction and records the outcome in results. Only
// unexpected store failures are returned.
func (uc *fulfillmentUseCase) fulfillItem(ctx context.Context, orderID string, input *dto.FulfillInput, in dto.FulfillItemInput, results *dto.Results) (*model.InventoryLogEntry, error) {
	var (
		res       *resolution
		qty       int64
		deduction *invdto.MutationResult
	)
	err := inventory.RetryOnConflict(ctx, uc.cfg.ConflictRetries, func(ctx context.Context) error {
		res, qty, deduction = nil, 0, nil
		return uc.txm.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			res, err = uc.resolveItem(ctx, orderID, in.ItemID, in.ProductID, in.SkipUnmapped)
			if err != nil || res.skip != "" || res.fail != "" {
				return err
			}

			qty = min(in.Quantity, res.item.Remaining())
			deduction, err = uc.inventory.Deduct(ctx, &invdto.DeductInput{
				ProductID:  res.product.ID,
				LocationID: input.LocationID,
				Quantity:   qty,
				UserID:     input.UserID,
				Context: invdto.DeductContext{
					OrderID: orderID,
					ItemID:  in.ItemID,
					Notes:   input.Notes,
				},
			})
			if err != nil {
				return err
			}

			ok, err := uc.repo.IncrementFulfilledQty(ctx, orderID, in.ItemID, qty)
			if err != nil {
				return fmt.Errorf("increment fulfilled quantity: %w", err)
			}
			if !ok {
				return apperr.Conflict("order item was fulfilled concurrently")
			}
			return nil
		})
	})

	productID := in.ProductID
	if res != nil && res.product != nil {
		productID = res.productID()
	}

	if err != nil {
		var (
			stockErr *apperr.InsufficientStockError
			ie       *apperr.InternalError
		)
		switch {
		case errors.As(err, &stockErr):
			results.Failed = append(results.Failed, dto.FailedItem{
				ItemID:            in.ItemID,
				ProductID:         productID,
				Reason:            dto.ReasonInsufficientStock,
				CurrentQuantity:   &stockErr.CurrentQuantity,
				RequestedQuantity: &stockErr.RequestedQuantity,
				Shortfall:         &stockErr.Shortfall,
			})
			return nil, nil
		case apperr.IsDomain(err) && !errors.As(err, &ie):
			results.Failed = append(results.Failed, dto.FailedItem{ItemID: in.ItemID, ProductID: productID, Reason: err.Error()})
			return nil, nil
		default:
			return nil, err
		}
	}

	switch {
	case res.fail != "":
		results.Failed = append(results.Failed, dto.FailedItem{ItemID: in.ItemID, ProductID: productID, Reason: res.fail})
	case res.skip != "":
		results.Skipped = append(results.Skipped, dto.SkippedItem{ItemID: in.ItemID, ProductID: productID, Reason: res.skip})
	default:
		results.Fulfilled = append(results.Fulfilled, dto.FulfilledItem{
			ItemID:      in.ItemID,
			ProductID:   res.product.ID,
			ProductName: res.product.Name,
			Quantity:    qty,
			LogID:       deduction.LogID,
		})
		return &deduction.Log, nil
	}
	return nil, nil
}

// settleOrder moves the order to fulfilled once nothing is left on any line, or to processing
// after a partial run. A fully fulfilled request that leaves other lines open keeps the order processing. A run that fulfilled nothing leaves the order alone.
func (uc *fulfillmentUseCase) settleOrder(ctx context.Context, order *model.ExternalOrder, status, userID string) (model.OrderStatus, error) {
	if status == dto.StatusNone {
		return order.InternalStatus, nil
	}

	next := model.OrderStatusProcessing
	if status == dto.StatusFulfilled {
		items, err := uc.repo.ListItems(ctx, order.ID)
		if err != nil {
			return "", err
		}
		next = model.OrderStatusFulfilled
		for i := range items {
			if items[i].Remaining() > 0 {
				next = model.OrderStatusProcessing
				break
			}
		}
	}

	var (
		fulfilledAt *time.Time
		fulfilledBy *string
	)
	if next == model.OrderStatusFulfilled {
		now := uc.now()
		fulfilledAt, fulfilledBy = &now, &userID
	}
	if err := uc.repo.UpdateOrderStatus(ctx, order.ID, next, fulfilledAt, fulfilledBy); err != nil {
		return "", err
	}
	return next, nil
}

func (uc *fulfillmentUseCase) ValidateOrderFulfillment(ctx context.Context, orderID string, locationID *int64) (*dto.ValidationResult, error) {
	if orderID == "" {
		return nil, apperr.Validation("orderId", "is required")
	}
	if locationID != nil && *locationID <= 0 {
		return nil, apperr.Validation("locationId", "must be positive")
	}

	ctx, span := uc.tracer.Start(ctx, "fulfillment.ValidateOrderFulfillment", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	order, err := uc.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if locationID != nil {
		if _, err := uc.inventory.GetLocation(ctx, *locationID); err != nil {
			return nil, apperr.Internal("validate fulfillment", err)
		}
	}

	items, err := uc.repo.ListItems(ctx, order.ID)
	if err != nil {
		return nil, apperr.Internal("validate fulfillment", err)
	}

	results := dto.NewResults()
	claimed := make(map[int64]int64)
	for _, item := range items {
		res, err := uc.resolveItem(ctx, order.ID, item.ID, nil, false)
		if err != nil {
			return nil, apperr.Internal("validate fulfillment", err)
		}
		switch {
		case res.fail != "":
			results.Failed = append(results.Failed, dto.FailedItem{ItemID: item.ID, Reason: res.fail})
			continue
		case res.skip != "":
			results.Skipped = append(results.Skipped, dto.SkippedItem{ItemID: item.ID, ProductID: res.productID(), Reason: res.skip})
			continue
		}

		productID := res.product.ID
		qty := res.item.Remaining()
		ready := dto.FulfilledItem{
			ItemID:      item.ID,
			ProductID:   productID,
			ProductName: res.product.Name,
			Quantity:    qty,
		}
		if locationID != nil {
			// Earlier ready lines on the same product consume stock before this one.
			avail, err := uc.inventory.ValidateStockAvailability(ctx, productID, *locationID, claimed[productID]+qty)
			if err != nil {
				return nil, apperr.Internal("validate fulfillment", err)
			}
			left := avail.CurrentQuantity - claimed[productID]
			if !avail.IsValid {
				results.Failed = append(results.Failed, dto.FailedItem{
					ItemID:            item.ID,
					ProductID:         &productID,
					Reason:            dto.ReasonInsufficientStock,
					CurrentQuantity:   &left,
					RequestedQuantity: &qty,
					Shortfall:         &avail.Shortfall,
				})
				continue
			}
			ready.CurrentQuantity = &left
			claimed[productID] += qty
		}
		results.Fulfilled = append(results.Fulfilled, ready)
	}

	return &dto.ValidationResult{
		OrderID:           order.ID,
		LocationID:        locationID,
		FulfillmentStatus: results.Status(),
		Results:           results,
		Summary:           results.Summary(),
	}, nil
}

func (uc *fulfillmentUseCase) loadOrder(ctx context.Context, orderID string) (*model.ExternalOrder, error) {
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("get order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("order", orderID)
	}
	if order.InternalStatus == model.OrderStatusCancelled {
		return nil, apperr.Validation("orderId", "order is cancelled")
	}
	return order, nil
}

// lockOrder takes the per-order lock. When the lock backend fails the run continues unlocked:
// the guarded writes still keep stock and fulfilled quantities consistent.
func (uc *fulfillmentUseCase) lockOrder(ctx context.Context, orderID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}

	key := lockKeyPrefix + orderID
	token := uuid.NewString()
	ok, err := uc.locker.AcquireLock(ctx, key, token, uc.cfg.OrderLockTTL)
	if err != nil {
		uc.logger.Warn("order lock unavailable, continuing without it", zap.String("order_id", orderID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, apperr.Conflict("order is already being fulfilled")
	}

	return func() {
		if err := uc.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			uc.logger.Warn("failed to release order lock", zap.String("order_id", orderID), zap.Error(err))
		}
	}, nil
}

func validateFulfillInput(input *dto.FulfillInput) error {
	if input.OrderID == "" {
		return apperr.Validation("orderId", "is required")
	}
	if input.LocationID <= 0 {
		return apperr.Validation("locationId", "must be positive")
	}
	if len(input.Items) == 0 {
		return apperr.Validation("items", "must not be empty")
	}
	if input.UserID == "" {
		return apperr.Validation("userId", "is required")
	}
	for i, it := range input.Items {
		if it.ItemID == "" {
			return apperr.Validation(fmt.Sprintf("items[%d].itemId", i), "is required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if it.ProductID != nil && *it.ProductID <= 0 {
			return apperr.Validation(fmt.Sprintf("items[%d].productId", i), "must be positive")
		}
	}
	return nil
}
