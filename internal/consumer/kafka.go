package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
)

// MessageProcessor interface for processing messages
type MessageProcessor interface {
	Process(ctx context.Context, event map[string]interface{}) error
	Flush()
}

// messageReader is the subset of *kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes enriched events. Messages are keyed by session id,
// so all events of a session arrive on one partition in order.
type KafkaConsumer struct {
	reader    messageReader
	processor MessageProcessor
	topic     string
	group     string
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(cfg config.KafkaConfig, processor MessageProcessor) (*KafkaConsumer, error) {
	topic := cfg.Topics["events"]
	if topic == "" {
		topic = "formsight.events.enriched"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
		topic:     topic,
		group:     cfg.ConsumerGroup,
	}, nil
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.topic).
		Str("group", c.group).
		Msg("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Kafka consumer stopped")
				return
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

// handle processes one message. Every outcome is final: unparseable and
// rejected messages are logged and committed so the partition keeps moving.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event map[string]interface{}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		metrics.EventsRejected.WithLabelValues("consumer", "unparseable").Inc()
		log.Error().
			Err(err).
			Str("value", string(msg.Value)).
			Msg("Failed to parse message")
		return
	}

	err := c.processor.Process(ctx, event)
	if err == nil {
		return
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		log.Warn().
			Err(err).
			Str("session_id", string(msg.Key)).
			Strs("fields", verr.Fields).
			Msg("Rejected invalid event")
		return
	}
	log.Error().
		Err(err).
		Str("session_id", string(msg.Key)).
		Int64("offset", msg.Offset).
		Msg("Failed to process event")
}

// Close flushes the processor and closes the reader
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
