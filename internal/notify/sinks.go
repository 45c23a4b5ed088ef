package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// LogSink writes each message as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, msgs []Message) error {
	for _, m := range msgs {
		s.logger.InfoContext(ctx, "ledger notification",
			"event_id", m.ID,
			"seq", m.Seq,
			"name", m.Name,
			"topics", m.Topics,
			"value", m.Value,
			"tx_hash", m.TxHash,
			"block", m.Block,
		)
	}
	return nil
}

// BatchSender is the part of the Kafka producer the sink needs.
type BatchSender interface {
	SendBatch(ctx context.Context, records []*kgo.Record) error
}

// KafkaSink publishes messages as JSON records keyed by Message.Key.
type KafkaSink struct {
	producer BatchSender
}

func NewKafkaSink(producer BatchSender) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, msgs []Message) error {
	records := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode notification %d: %w", m.Seq, err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(m.Key()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event_id", Value: []byte(m.ID)},
				{Key: "event_name", Value: []byte(m.Name)},
			},
		})
	}
	return s.producer.SendBatch(ctx, records)
}
