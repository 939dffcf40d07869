package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/consumer"
	"github.com/gosight/formsight/internal/handler"
	"github.com/gosight/formsight/internal/inference"
	"github.com/gosight/formsight/internal/processor"
	"github.com/gosight/formsight/internal/producer"
	"github.com/gosight/formsight/internal/session"
	"github.com/gosight/formsight/internal/storage"
	"github.com/gosight/formsight/internal/store"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/session-processor.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("clickhouse_addr", cfg.ClickHouse.Addr).
		Str("redis_addr", cfg.Redis.Addr).
		Str("inference_url", cfg.Inference.URL).
		Int("batch_size", cfg.Batch.Size).
		Dur("flush_interval", cfg.Batch.FlushInterval).
		Msg("Configuration loaded")

	// Session persistence
	sessionStore, closeStore := openStore(cfg)
	defer closeStore()

	sessions, err := session.NewManager(sessionStore, cfg.Scoring, session.Options{
		CacheSize:      cfg.Session.CacheSize,
		PersistTimeout: cfg.Session.PersistTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}

	// Initialize ClickHouse
	var writer processor.Writer
	if cfg.ClickHouse.Addr != "" {
		ch, err := storage.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		defer ch.Close()
		writer = ch
		log.Info().Msg("Connected to ClickHouse")
	}

	sessionProcessor := processor.NewSessionProcessor(sessions, writer, cfg.Batch)

	// Adaptation decisions
	opts := []inference.Option{
		inference.WithSink(sessionProcessor),
		inference.WithClassifier(cfg.Scoring.Classifier),
	}
	if _, ok := cfg.Kafka.Topics[producer.TopicAdaptations]; ok {
		kafkaProducer, err := producer.NewKafkaProducer(config.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topics:  map[string]string{producer.TopicAdaptations: cfg.Kafka.Topics[producer.TopicAdaptations]},
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		defer kafkaProducer.Close()
		opts = append(opts, inference.WithPublisher(kafkaProducer))
	}
	var predictor inference.Predictor
	if cfg.Inference.URL != "" {
		predictor = inference.NewClient(cfg.Inference)
	} else {
		log.Warn().Msg("No inference URL configured, all adaptations come from the rule engine")
	}
	adapter := inference.NewService(predictor, opts...)

	// Create Kafka consumer
	kafkaConsumer, err := consumer.NewKafkaConsumer(cfg.Kafka, sessionProcessor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	// Start consuming
	ctx, cancel := context.WithCancel(context.Background())
	go kafkaConsumer.Start(ctx)

	api := handler.NewSessionAPI(sessions, adapter, sessionProcessor)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	log.Info().Msg("Session processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	cancel()
	kafkaConsumer.Close()
	sessionProcessor.Stop()

	log.Info().Msg("Shutdown complete")
}

// openStore picks Redis when configured and reachable, then Badger, then
// the in-process store
func openStore(cfg *config.Config) (store.PersistenceStore, func()) {
	if cfg.Redis.Addr != "" {
		rs := store.NewRedisStore(cfg.Redis, cfg.Session.TTL)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := rs.Ping(ctx)
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Session store: Redis")
			return rs, func() { rs.Close() }
		}
		log.Warn().Err(err).Msg("Redis unavailable, falling back")
		rs.Close()
	}

	if cfg.Badger.Path != "" || cfg.Badger.InMemory {
		bs, err := store.NewBadgerStore(cfg.Badger, cfg.Session.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open Badger store")
		}
		log.Info().Str("path", cfg.Badger.Path).Bool("in_memory", cfg.Badger.InMemory).Msg("Session store: Badger")
		return bs, func() { bs.Close() }
	}

	log.Warn().Msg("Session store: in-process only, sessions are lost on restart")
	return store.NewMemoryStore(cfg.Session.CacheSize, cfg.Session.TTL), func() {}
}
