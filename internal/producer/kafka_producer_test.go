package producer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProduceEventKeysBySession(t *testing.T) {
	events := &fakeWriter{}
	p := &KafkaProducer{writers: map[string]messageWriter{TopicEvents: events}}

	require.NoError(t, p.ProduceEvent(context.Background(), "s1", map[string]string{"type": "focus"}))
	require.Len(t, events.msgs, 1)
	assert.Equal(t, "s1", string(events.msgs[0].Key))
	assert.JSONEq(t, `{"type":"focus"}`, string(events.msgs[0].Value))
}

func TestPublishAdaptations(t *testing.T) {
	adaptations := &fakeWriter{}
	p := &KafkaProducer{writers: map[string]messageWriter{TopicAdaptations: adaptations}}

	err := p.PublishAdaptations(context.Background(), []model.Adaptation{
		{ID: "a1", SessionID: "s1", AdaptationType: model.AdaptationErrorPrevention},
		{ID: "a2", SessionID: "s1", AdaptationType: model.AdaptationContextSwitching},
	})
	require.NoError(t, err)
	require.Len(t, adaptations.msgs, 2)

	var got model.Adaptation
	require.NoError(t, json.Unmarshal(adaptations.msgs[1].Value, &got))
	assert.Equal(t, "a2", got.ID)
	assert.Equal(t, "s1", string(adaptations.msgs[1].Key))
}

func TestMissingTopics(t *testing.T) {
	p := &KafkaProducer{writers: map[string]messageWriter{}}
	assert.Error(t, p.ProduceEvent(context.Background(), "s1", struct{}{}))
	// adaptation publishing is optional
	assert.NoError(t, p.PublishAdaptations(context.Background(), []model.Adaptation{{ID: "a1"}}))
}

func TestNewKafkaProducerNeedsBrokers(t *testing.T) {
	_, err := NewKafkaProducer(config.KafkaConfig{Topics: map[string]string{TopicEvents: "e"}})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	a, b := &fakeWriter{}, &fakeWriter{}
	p := &KafkaProducer{writers: map[string]messageWriter{TopicEvents: a, TopicAdaptations: b}}
	require.NoError(t, p.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
