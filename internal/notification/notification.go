// Package notification publishes low-stock events. Delivery to email or SMS happens downstream.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/broker"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type LowStockEvent struct {
	ProductID     int64     `json:"productId"`
	ProductName   string    `json:"productName"`
	LocationID    int64     `json:"locationId"`
	TotalQuantity int64     `json:"totalQuantity"`
	Threshold     int64     `json:"threshold"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Notifier interface {
	NotifyLowStock(ctx context.Context, event LowStockEvent) error
}

type KafkaNotifier struct {
	producer broker.Producer
}

func NewKafkaNotifier(producer broker.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) NotifyLowStock(ctx context.Context, event LowStockEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal low stock event: %w", err)
	}
	return n.producer.WriteMessage(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ProductID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("LowStock")},
		},
	})
}

// LogNotifier only logs. Used when Kafka is disabled.
type LogNotifier struct {
	logger logger.ZapLogger
}

func NewLogNotifier(log logger.ZapLogger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) NotifyLowStock(_ context.Context, event LowStockEvent) error {
	n.logger.Warn("low stock",
		zap.Int64("product_id", event.ProductID),
		zap.String("product_name", event.ProductName),
		zap.Int64("total_quantity", event.TotalQuantity),
		zap.Int64("threshold", event.Threshold),
	)
	return nil
}
