package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/config"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// KafkaPublisher streams recorded attack events to the configured topic so
// downstream analysis (SIEM ingestion, alerting) can consume them without
// polling the service.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher builds the async-capable writer. Connectivity is not
// probed eagerly; a dead broker shows up as sink publish warnings, never as
// a refused decoy response.
func NewKafkaPublisher(cfg *config.Config, logger *zap.Logger) (*KafkaPublisher, error) {
	kafkaConfig := cfg.Kafka
	if len(kafkaConfig.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if logger == nil {
		logger = util.Get()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka event publisher initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.Topic),
	)

	return &KafkaPublisher{writer: writer, topic: kafkaConfig.Topic, logger: logger}, nil
}

// Name implements recorder.Sink.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes one event keyed by session so per-session ordering
// survives partitioning.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.AttackEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for kafka: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			p.logger.Error("failed to close Kafka publisher", zap.Error(err))
			return err
		}
		util.Info("Kafka publisher closed")
	}
	return nil
}
