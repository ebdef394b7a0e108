package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/broker"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink publishes entries as JSON keyed by entity, so one entity's history stays ordered
// within a partition.
type KafkaSink struct {
	producer broker.Producer
}

func NewKafkaSink(producer broker.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Publish(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	return s.producer.WriteMessage(ctx, kafka.Message{
		Key:   []byte(entry.EntityType + ":" + entry.EntityID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(entry.Action)},
		},
	})
}

// LogSink writes entries to the service log. Used when Kafka is disabled.
type LogSink struct {
	logger logger.ZapLogger
}

func NewLogSink(log logger.ZapLogger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Publish(_ context.Context, entry Entry) error {
	s.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID),
		zap.String("user_id", entry.UserID),
		zap.String("batch_id", entry.BatchID),
		zap.Any("details", entry.Details),
	)
	return nil
}

type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
