package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/broker"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const EventFulfillmentRequested = "FulfillmentRequested"

// FulfillmentListener consumes fulfillment requests pushed by the integration sync workers.
type FulfillmentListener struct {
	consumer broker.Consumer
	uc       fulfillment.UseCase
	logger   logger.ZapLogger
}

func NewFulfillmentListener(consumer broker.Consumer, uc fulfillment.UseCase, logger logger.ZapLogger) *FulfillmentListener {
	return &FulfillmentListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled.
func (l *FulfillmentListener) Start(ctx context.Context) error {
	l.logger.Info("Starting Fulfillment Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Fulfillment Kafka Listener")
			return nil
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg)
		}
	}
}

type FulfillmentRequestedEvent struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Payload   FulfillmentPayload `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

type FulfillmentPayload struct {
	OrderID    string                   `json:"order_id"`
	LocationID int64                    `json:"location_id"`
	UserID     string                   `json:"user_id"`
	Notes      string                   `json:"notes"`
	Items      []FulfillmentItemPayload `json:"items"`
}

type FulfillmentItemPayload struct {
	ItemID       string `json:"item_id"`
	Quantity     int64  `json:"quantity"`
	ProductID    *int64 `json:"product_id"`
	SkipUnmapped bool   `json:"skip_unmapped"`
}

func (l *FulfillmentListener) processMessage(ctx context.Context, msg kafka.Message) {
	ctx = broker.ExtractTraceContext(ctx, msg.Headers)

	var event FulfillmentRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventFulfillmentRequested {
		return
	}

	p := event.Payload
	l.logger.Info("Processing FulfillmentRequested event",
		zap.String("event_id", event.EventID),
		zap.String("order_id", p.OrderID),
	)

	input := &dto.FulfillInput{
		OrderID:    p.OrderID,
		LocationID: p.LocationID,
		UserID:     p.UserID,
		Notes:      p.Notes,
	}
	if input.UserID == "" {
		input.UserID = "system"
	}
	for _, it := range p.Items {
		input.Items = append(input.Items, dto.FulfillItemInput{
			ItemID:       it.ItemID,
			Quantity:     it.Quantity,
			ProductID:    it.ProductID,
			SkipUnmapped: it.SkipUnmapped,
		})
	}

	res, err := l.uc.FulfillExternalOrder(ctx, input)
	if err != nil {
		var ce *apperr.ConflictError
		if errors.As(err, &ce) {
			l.logger.Warn("Order is busy, dropping fulfillment request", zap.String("order_id", p.OrderID))
			return
		}
		l.logger.Error("Failed to fulfill order",
			zap.String("order_id", p.OrderID),
			zap.Error(err),
		)
		return
	}

	l.logger.Info("Fulfillment request processed",
		zap.String("order_id", p.OrderID),
		zap.String("status", res.FulfillmentStatus),
		zap.Int("failed", res.Summary.Failed),
	)
}
