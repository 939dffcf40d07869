package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/inference"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/session"
)

// Adapter decides and records adaptations for a session
type Adapter interface {
	Adapt(ctx context.Context, sess *session.Session, formID string) (inference.Result, error)
}

// SessionAPI serves session read models and adaptation decisions
type SessionAPI struct {
	sessions *session.Manager
	adapter  Adapter
	sink     inference.Sink
}

func NewSessionAPI(sessions *session.Manager, adapter Adapter, sink inference.Sink) *SessionAPI {
	return &SessionAPI{sessions: sessions, adapter: adapter, sink: sink}
}

// Routes builds the processor router
func (a *SessionAPI) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", a.getSession)
		r.Get("/profile", a.getProfile)
		r.Get("/recommendations", a.getRecommendations)
		r.Post("/adapt", a.adapt)
		r.Post("/adaptations", a.recordAdaptation)
	})
	return r
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func (a *SessionAPI) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := a.sessions.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (a *SessionAPI) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (a *SessionAPI) getProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.EnhancedProfile())
}

func (a *SessionAPI) getRecommendations(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":       sess.ID(),
		"recommendations": sess.Recommendations(),
	})
}

func (a *SessionAPI) adapt(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}
	res, err := a.adapter.Adapt(r.Context(), sess, r.URL.Query().Get("form_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// recordAdaptation stores an adaptation applied outside the decision
// endpoint, for example by a client-side experiment
func (a *SessionAPI) recordAdaptation(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.lookup(w, r)
	if !ok {
		return
	}

	var ad model.Adaptation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&ad); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	recorded, err := sess.RecordAdaptation(r.Context(), ad)
	if err != nil {
		writeError(w, err)
		return
	}
	if a.sink != nil {
		a.sink.AddAdaptations([]model.Adaptation{recorded})
	}
	writeJSON(w, http.StatusCreated, recorded)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Reason, Fields: verr.Fields})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
