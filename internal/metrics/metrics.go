// Package metrics holds the Prometheus collectors shared by both services
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted by the ingestor or a session
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formsight_events_ingested_total",
		Help: "Total behavior events accepted, by component",
	}, []string{"component"})

	// EventsRejected counts events dropped as invalid
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formsight_events_rejected_total",
		Help: "Total behavior events rejected, by component and reason",
	}, []string{"component", "reason"})

	// PersistenceFailures counts best-effort store writes and reads that failed
	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formsight_persistence_failures_total",
		Help: "Total persistence store failures by operation",
	}, []string{"operation"})

	// LiveSessions is the number of sessions held in memory
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "formsight_live_sessions",
		Help: "Sessions currently held in the in-process cache",
	})

	// AdaptationsGenerated counts adaptations by source and type
	AdaptationsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formsight_adaptations_generated_total",
		Help: "Total adaptations generated by source and type",
	}, []string{"source", "type"})

	// InferenceDuration tracks ML inference latency
	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formsight_inference_duration_seconds",
		Help:    "ML inference request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
	}, []string{"result"})

	// BatchFlushes counts analytics batch inserts by table and result
	BatchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formsight_batch_flushes_total",
		Help: "Total ClickHouse batch flushes by table and result",
	}, []string{"table", "result"})
)
