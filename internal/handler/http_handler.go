package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/enricher"
	"github.com/gosight/formsight/internal/metrics"
)

const maxBatchBytes = 1 << 20

// EventProducer publishes enriched events keyed by session id
type EventProducer interface {
	ProduceEvent(ctx context.Context, sessionID string, event interface{}) error
}

// KeyValidator authenticates and rate limits capture batches
type KeyValidator interface {
	ValidateFormKey(ctx context.Context, formKey string) (string, error)
	CheckRateLimit(ctx context.Context, formKeyID string) bool
}

type HTTPHandler struct {
	producer  EventProducer
	validator KeyValidator
	enricher  *enricher.Enricher
}

func NewHTTPHandler(p EventProducer, v KeyValidator, e *enricher.Enricher) *HTTPHandler {
	return &HTTPHandler{
		producer:  p,
		validator: v,
		enricher:  e,
	}
}

// EventBatchRequest is one upload from the capture script
type EventBatchRequest struct {
	FormKey     string                   `json:"form_key"`
	SessionID   string                   `json:"session_id"`
	UserID      string                   `json:"user_id"`
	Environment enricher.Environment     `json:"environment"`
	Events      []map[string]interface{} `json:"events"`
}

type EventResponse struct {
	Success       bool     `json:"success"`
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors,omitempty"`
}

// HandleEvents validates, enriches and produces a batch. An invalid event
// only rejects itself; the rest of the batch is still accepted.
func (h *HTTPHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	defer r.Body.Close()

	var req EventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, EventResponse{Errors: []string{"Invalid JSON"}})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, EventResponse{Errors: []string{"session_id is required"}})
		return
	}

	// Validate form key
	formKeyID, err := h.validator.ValidateFormKey(r.Context(), req.FormKey)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, EventResponse{Errors: []string{"Invalid form key"}})
		return
	}

	// Rate limiting
	if !h.validator.CheckRateLimit(r.Context(), formKeyID) {
		metrics.EventsRejected.WithLabelValues("ingestor", "rate_limited").Add(float64(len(req.Events)))
		writeJSON(w, http.StatusTooManyRequests, EventResponse{Errors: []string{"Rate limit exceeded"}})
		return
	}

	ip := clientIP(r)
	userAgent := r.Header.Get("User-Agent")

	accepted := 0
	rejected := 0
	var errs []string

	for i, event := range req.Events {
		if event == nil {
			metrics.EventsRejected.WithLabelValues("ingestor", "invalid").Inc()
			rejected++
			errs = append(errs, fmt.Sprintf("event %d: not an object", i))
			continue
		}
		if event["event_id"] == nil {
			event["event_id"] = uuid.New().String()
		}

		enriched := h.enricher.Enrich(event, req.SessionID, req.UserID, req.Environment, userAgent, ip)

		be := enriched.BehaviorEvent()
		if err := be.Validate(); err != nil {
			metrics.EventsRejected.WithLabelValues("ingestor", "invalid").Inc()
			rejected++
			errs = append(errs, err.Error())
			continue
		}

		// Produce to Kafka
		if err := h.producer.ProduceEvent(r.Context(), req.SessionID, enriched); err != nil {
			metrics.EventsRejected.WithLabelValues("ingestor", "produce").Inc()
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to produce event")
			rejected++
			errs = append(errs, err.Error())
			continue
		}
		metrics.EventsIngested.WithLabelValues("ingestor").Inc()
		accepted++
	}

	writeJSON(w, http.StatusOK, EventResponse{
		Success:       rejected == 0,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		Errors:        errs,
	})
}

// clientIP prefers X-Real-IP, then the first X-Forwarded-For hop, then the
// peer address
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Form-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
