package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/store"
)

// Session is one live session. All methods are safe for concurrent use;
// mutations of the same session are serialised.
type Session struct {
	mgr *Manager
	id  string

	mu      sync.Mutex
	state   model.SessionState
	dirty   bool
	evicted bool
}

func newSession(m *Manager, st model.SessionState) *Session {
	return &Session{mgr: m, id: st.SessionID, state: st}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// acquire locks the session that currently owns s.id and returns it.
// A reference to an evicted session follows the id back through the
// manager, so writes never land on a retired copy.
func (s *Session) acquire(ctx context.Context) *Session {
	cur := s
	for {
		cur.mu.Lock()
		if !cur.evicted {
			return cur
		}
		cur.mu.Unlock()
		cur = cur.mgr.resolve(ctx, cur)
	}
}

// Ingest appends a validated event, updates the behavioral context and the
// derived scores, then persists. Only a *model.ValidationError is returned;
// persistence failures are logged and retried on the next write.
func (s *Session) Ingest(ctx context.Context, e model.BehaviorEvent) error {
	if err := e.Validate(); err != nil {
		metrics.EventsRejected.WithLabelValues("session", "invalid").Inc()
		return err
	}
	if e.SessionID != s.id {
		metrics.EventsRejected.WithLabelValues("session", "session_mismatch").Inc()
		return &model.ValidationError{
			EventID: e.EventID,
			Fields:  []string{"SessionID(mismatch)"},
			Reason:  "event belongs to session " + e.SessionID,
		}
	}
	e.Data = copyData(e.Data)

	s = s.acquire(ctx)
	defer s.mu.Unlock()

	st := &s.state
	st.Events = append(st.Events, e)

	sc := &st.Context.Session
	if len(st.Events) == 1 || e.Timestamp < sc.StartTime {
		sc.StartTime = e.Timestamp
	}
	if e.Timestamp > sc.LastActivity {
		sc.LastActivity = e.Timestamp
	}
	st.Metrics.TotalEvents = len(st.Events)
	st.Metrics.SessionDuration = sc.LastActivity - sc.StartTime

	s.mgr.analyzer.AnalyzeEvent(e, st)
	Rescore(st, s.mgr.cfg)
	metrics.EventsIngested.WithLabelValues("session").Inc()

	s.persist(ctx)
	return nil
}

// RecordAdaptation validates and stores an applied adaptation together with
// a snapshot of the current scores, then persists. It returns the adaptation
// as stored, with its id and AppliedAt filled in.
func (s *Session) RecordAdaptation(ctx context.Context, a model.Adaptation) (model.Adaptation, error) {
	if a.SessionID == "" {
		a.SessionID = s.id
	}
	if a.SessionID != s.id {
		return a, &model.ValidationError{
			EventID: a.ID,
			Fields:  []string{"SessionID(mismatch)"},
			Reason:  "adaptation belongs to session " + a.SessionID,
		}
	}
	if err := a.Validate(); err != nil {
		return a, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AppliedAt == 0 {
		a.AppliedAt = s.mgr.now().UnixMilli()
	}
	a.IsActive = true
	a.Metadata = copyMetadata(a.Metadata)

	s = s.acquire(ctx)
	defer s.mu.Unlock()

	st := &s.state
	rec := model.AdaptationRecord{
		Adaptation: a,
		Snapshot: model.ContextSnapshot{
			TotalEvents:          st.Metrics.TotalEvents,
			SessionDuration:      st.Metrics.SessionDuration,
			EngagementScore:      st.Metrics.EngagementScore,
			ConversionLikelihood: st.Metrics.ConversionLikelihood,
			Behavioral:           st.Context.Behavioral,
			Flags:                st.Flags,
		},
	}
	st.Adaptations = append(st.Adaptations, rec)
	Rescore(st, s.mgr.cfg)
	s.analyzeEffectiveness(rec)

	s.persist(ctx)
	return a, nil
}

// analyzeEffectiveness is where outcome feedback for the ML model will be
// computed. It currently does nothing.
func (s *Session) analyzeEffectiveness(model.AdaptationRecord) {}

// SetProfile stores the classifier-derived profile
func (s *Session) SetProfile(ctx context.Context, p model.UserProfile) {
	s = s.acquire(ctx)
	defer s.mu.Unlock()

	s.state.Profile = &p
	s.persist(ctx)
}

// Recommendations returns the current recommendations. It does not persist.
func (s *Session) Recommendations() []model.Recommendation {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()
	return s.mgr.analyzer.GenerateRecommendations(&s.state)
}

// EnhancedProfile builds the dashboard read model without side effects
func (s *Session) EnhancedProfile() model.EnhancedProfile {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()
	return buildEnhancedProfile(&s.state, s.mgr.analyzer)
}

// Snapshot returns a deep copy of the session state
func (s *Session) Snapshot() model.SessionState {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()
	return s.state.Clone()
}

// FormEvents returns a copy of the events recorded for formID
func (s *Session) FormEvents(formID string) []model.BehaviorEvent {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()
	return s.state.EventsForForm(formID)
}

// Dirty reports whether the last write to the store failed
func (s *Session) Dirty() bool {
	s = s.acquire(context.Background())
	defer s.mu.Unlock()
	return s.dirty
}

// persist writes the full state and the user's history. Must hold s.mu.
func (s *Session) persist(ctx context.Context) {
	st := &s.state

	data, err := json.Marshal(st)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("encode").Inc()
		log.Error().Err(err).Str("session_id", s.id).Msg("Failed to encode session state")
		s.dirty = true
		return
	}

	if err := s.mgr.set(ctx, store.SessionKey(s.id), data); err != nil {
		metrics.PersistenceFailures.WithLabelValues("set").Inc()
		log.Warn().Err(err).Str("session_id", s.id).Msg("Failed to persist session, keeping in memory")
		s.dirty = true
	} else if s.dirty {
		log.Info().Str("session_id", s.id).Msg("Session persisted after earlier failure")
		s.dirty = false
	}

	if st.UserID == "" {
		return
	}
	if err := s.mgr.updateHistory(ctx, st.UserID, summarize(st)); err != nil {
		metrics.PersistenceFailures.WithLabelValues("history").Inc()
		log.Warn().Err(err).Str("session_id", s.id).Str("user_id", st.UserID).Msg("Failed to update user history")
	}
}

func summarize(st *model.SessionState) model.SessionSummary {
	b := st.Context.Behavioral
	return model.SessionSummary{
		SessionID:            st.SessionID,
		FormID:               st.Context.Session.FormID,
		StartTime:            st.Context.Session.StartTime,
		Duration:             st.Metrics.SessionDuration,
		TotalEvents:          st.Metrics.TotalEvents,
		TotalAdaptations:     st.Metrics.TotalAdaptations,
		EngagementScore:      st.Metrics.EngagementScore,
		ConversionLikelihood: st.Metrics.ConversionLikelihood,
		Submitted:            st.Context.Session.Submissions > st.Context.Session.FailedSubmissions,
		TypingSpeed:          b.TypingSpeed,
		ErrorRate:            b.ErrorRate,
		ConfidenceLevel:      b.ConfidenceLevel,
		Hesitation:           b.Hesitation,
		Precision:            b.Precision,
		HelpSeeking:          b.HelpSeeking,
		ScrollFrequency:      b.ScrollFrequency,
	}
}

func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func copyMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
