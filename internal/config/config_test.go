package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExpandsEnvAndFillsDefaults(t *testing.T) {
	t.Setenv("FORMSIGHT_REDIS_ADDR", "redis:6379")

	path := filepath.Join(t.TempDir(), "processor.yaml")
	yml := `
redis:
  addr: ${FORMSIGHT_REDIS_ADDR}
kafka:
  brokers: ["kafka:9092"]
  topics:
    events: formsight.events
scoring:
  high_value_engagement: 0.8
  assistance:
    hesitation_ms: 6000
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "formsight-session-processor", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.PersistTimeout)
	assert.Equal(t, time.Hour, cfg.Session.TTL)

	// overridden values
	assert.Equal(t, 0.8, cfg.Scoring.HighValue)
	assert.Equal(t, 6000.0, cfg.Scoring.Assistance.HesitationMs)
	// untouched values keep their defaults
	assert.Equal(t, 0.25, cfg.Scoring.Assistance.ErrorRate)
	assert.Equal(t, 0.5, cfg.Scoring.Conversion.Base)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultScoringPriors(t *testing.T) {
	p := DefaultScoring().Priors
	assert.Equal(t, 0.5, p.TypingSpeed)
	assert.Equal(t, 0.1, p.ErrorRate)
	assert.Equal(t, 0.5, p.ConfidenceLevel)
	assert.Equal(t, 2000.0, p.HesitationMs)
	assert.Equal(t, 0.5, p.Precision)
	assert.Equal(t, 0.3, p.HelpSeeking)
	assert.Equal(t, 0.3, p.ScrollFrequency)
	assert.Equal(t, 0.5, p.TypingConfidence)
}
