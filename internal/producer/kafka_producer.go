package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
)

// Topic names in config.KafkaConfig.Topics
const (
	TopicEvents      = "events"
	TopicAdaptations = "adaptations"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes JSON messages keyed by session id. The hash balancer
// keeps every message of a session on one partition.
type KafkaProducer struct {
	writers map[string]messageWriter
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("producer: no kafka brokers configured")
	}

	writers := make(map[string]messageWriter)
	for name, topic := range cfg.Topics {
		name := name
		writers[name] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					metrics.EventsRejected.WithLabelValues("producer", name).Add(float64(len(messages)))
					log.Error().Err(err).Str("topic", name).Int("count", len(messages)).Msg("Failed to deliver messages")
				}
			},
		}
	}

	return &KafkaProducer{writers: writers}, nil
}

// ProduceEvent publishes one enriched event on the events topic
func (p *KafkaProducer) ProduceEvent(ctx context.Context, sessionID string, event interface{}) error {
	return p.produce(ctx, TopicEvents, sessionID, event)
}

// PublishAdaptations publishes recorded adaptations, one message each
func (p *KafkaProducer) PublishAdaptations(ctx context.Context, adaptations []model.Adaptation) error {
	w, ok := p.writers[TopicAdaptations]
	if !ok {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(adaptations))
	for _, a := range adaptations {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.SessionID), Value: data})
	}
	return w.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) produce(ctx context.Context, topic, key string, v interface{}) error {
	w, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("producer: topic %q not configured", topic)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
