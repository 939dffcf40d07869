// Package session owns the lifecycle of behavioral sessions: restoring or
// creating them, ingesting events, scoring, and persisting state and user
// history.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/gosight/formsight/internal/analyzer"
	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/detect"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/store"
)

// ErrNotFound is returned by Lookup for an unknown session id
var ErrNotFound = errors.New("session not found")

// Options tune a Manager. Zero values fall back to defaults.
type Options struct {
	CacheSize      int
	PersistTimeout time.Duration
	Now            func() time.Time
}

// Manager is the registry of live sessions. At most one *Session per id is
// usable at a time: an evicted session is first persisted, then marked so
// that references still held by callers resolve the id again.
type Manager struct {
	store    store.PersistenceStore
	analyzer *analyzer.Analyzer
	cfg      config.ScoringConfig

	mu       sync.Mutex
	sessions *simplelru.LRU[string, *Session]
	// retiring holds evicted sessions until they are persisted; they can be
	// revived by id in the meantime
	retiring map[string]*Session
	pending  []*Session

	loads          singleflight.Group
	users          *keyedMutex
	persistTimeout time.Duration
	now            func() time.Time
}

// NewManager creates a session manager backed by st
func NewManager(st store.PersistenceStore, cfg config.ScoringConfig, opts Options) (*Manager, error) {
	if st == nil {
		return nil, errors.New("session: persistence store is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 10000
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		store:          st,
		analyzer:       analyzer.New(cfg),
		cfg:            cfg,
		retiring:       make(map[string]*Session),
		users:          newKeyedMutex(),
		persistTimeout: opts.PersistTimeout,
		now:            opts.Now,
	}
	cache, err := simplelru.NewLRU[string, *Session](opts.CacheSize, m.onEvict)
	if err != nil {
		return nil, err
	}
	m.sessions = cache
	return m, nil
}

// Analyzer returns the analyzer shared by all sessions
func (m *Manager) Analyzer() *analyzer.Analyzer {
	return m.analyzer
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}

// Initialize returns the session for sessionID. A live session is returned
// as is; otherwise the persisted state is restored, or a fresh state is
// built from the probe and the user's history. Store failures and corrupt
// payloads are logged and treated as absent.
func (m *Manager) Initialize(ctx context.Context, sessionID, userID string, probe detect.EnvironmentProbe) (*Session, error) {
	if sessionID == "" {
		return nil, &model.ValidationError{Fields: []string{"SessionID(required)"}, Reason: "session id is required"}
	}
	if s, ok := m.live(sessionID); ok {
		return s, nil
	}

	v, _, _ := m.loads.Do(sessionID, func() (interface{}, error) {
		if s, ok := m.live(sessionID); ok {
			return s, nil
		}
		s, ok := m.restore(ctx, sessionID)
		if !ok {
			s = m.create(ctx, sessionID, userID, probe)
		}
		return m.register(s), nil
	})
	return v.(*Session), nil
}

// Lookup returns a live or persisted session without creating one
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	if s, ok := m.live(sessionID); ok {
		return s, nil
	}
	v, _, _ := m.loads.Do("lookup:"+sessionID, func() (interface{}, error) {
		if s, ok := m.live(sessionID); ok {
			return s, nil
		}
		s, ok := m.restore(ctx, sessionID)
		if !ok {
			return (*Session)(nil), nil
		}
		return m.register(s), nil
	})
	s := v.(*Session)
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// live returns the registered session for id. A session that is still
// being retired is put back in the cache instead of being restored.
func (m *Manager) live(id string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions.Get(id)
	if !ok {
		if s, ok = m.retiring[id]; ok {
			delete(m.retiring, id)
			m.add(s)
		}
	}
	pending := m.takePending()
	m.mu.Unlock()

	m.retire(pending)
	return s, ok
}

// register adds s unless a session with the same id is live or retiring,
// in which case that one wins
func (m *Manager) register(s *Session) *Session {
	m.mu.Lock()
	if prev, ok := m.sessions.Get(s.id); ok {
		m.mu.Unlock()
		return prev
	}
	if prev, ok := m.retiring[s.id]; ok {
		delete(m.retiring, s.id)
		s = prev
	}
	m.add(s)
	pending := m.takePending()
	m.mu.Unlock()

	m.retire(pending)
	return s
}

// resolve finds the session that replaced an evicted one
func (m *Manager) resolve(ctx context.Context, old *Session) *Session {
	if s, err := m.Lookup(ctx, old.id); err == nil {
		return s
	}
	// The store no longer has it, so the evicted copy is the newest state
	old.mu.Lock()
	st := old.state.Clone()
	old.mu.Unlock()
	return m.register(newSession(m, st))
}

// add must hold m.mu
func (m *Manager) add(s *Session) {
	m.sessions.Add(s.id, s)
	metrics.LiveSessions.Inc()
}

// onEvict runs under m.mu from inside add
func (m *Manager) onEvict(id string, s *Session) {
	metrics.LiveSessions.Dec()
	m.retiring[id] = s
	m.pending = append(m.pending, s)
}

// takePending must hold m.mu
func (m *Manager) takePending() []*Session {
	p := m.pending
	m.pending = nil
	return p
}

// retire flushes evicted sessions and marks them evicted once their state
// is safe in the store. A session whose flush fails stays in retiring,
// usable by the callers holding it, until Initialize or Lookup revives it.
func (m *Manager) retire(pending []*Session) {
	for _, s := range pending {
		s.mu.Lock()
		if s.dirty {
			s.persist(context.Background())
		}
		m.mu.Lock()
		if m.retiring[s.id] == s && !s.dirty {
			delete(m.retiring, s.id)
			s.evicted = true
		}
		m.mu.Unlock()
		if s.dirty {
			log.Warn().Str("session_id", s.id).Msg("Evicted session could not be persisted, keeping it in memory")
		}
		s.mu.Unlock()
	}
}

func (m *Manager) restore(ctx context.Context, sessionID string) (*Session, bool) {
	data, err := m.get(ctx, store.SessionKey(sessionID))
	if err != nil || data == nil {
		return nil, false
	}

	var st model.SessionState
	if err := json.Unmarshal(data, &st); err != nil || st.SessionID != sessionID {
		metrics.PersistenceFailures.WithLabelValues("decode").Inc()
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Discarding corrupt session state")
		return nil, false
	}
	// The invariants are re-established rather than trusted
	Rescore(&st, m.cfg)

	log.Debug().Str("session_id", sessionID).Int("events", len(st.Events)).Msg("Session restored")
	return newSession(m, st), true
}

func (m *Manager) create(ctx context.Context, sessionID, userID string, probe detect.EnvironmentProbe) *Session {
	device, browser, temporal := detect.Detect(probe, m.now())

	var history *model.UserHistory
	if userID != "" {
		history = m.loadHistory(ctx, userID)
	}

	st := model.SessionState{
		SessionID:   sessionID,
		UserID:      userID,
		Events:      []model.BehaviorEvent{},
		Adaptations: []model.AdaptationRecord{},
		Context: model.Context{
			Device:     device,
			Browser:    browser,
			Temporal:   temporal,
			Behavioral: m.priors(history),
		},
	}
	if history != nil {
		st.Flags.IsReturningUser = history.TotalSessions > 0 && !history.HasSession(sessionID)
	}
	Rescore(&st, m.cfg)

	log.Debug().
		Str("session_id", sessionID).
		Str("device", device.Type).
		Bool("returning", st.Flags.IsReturningUser).
		Msg("Session created")
	return newSession(m, st)
}

// priors seeds the behavioral context from the user's history, falling back
// to the configured defaults
func (m *Manager) priors(h *model.UserHistory) model.BehavioralContext {
	p := m.cfg.Priors
	b := model.BehavioralContext{
		TypingSpeed:      p.TypingSpeed,
		ErrorRate:        p.ErrorRate,
		ConfidenceLevel:  p.ConfidenceLevel,
		Hesitation:       p.HesitationMs,
		Precision:        p.Precision,
		HelpSeeking:      p.HelpSeeking,
		ScrollFrequency:  p.ScrollFrequency,
		TypingConfidence: p.TypingConfidence,
		RecentEngagement: p.RecentEngagement,
	}

	if h != nil && len(h.Sessions) > 0 {
		b.TypingSpeed = h.TypingSpeed
		b.ErrorRate = h.ErrorRate
		b.ConfidenceLevel = h.ConfidenceScore
		b.Hesitation = h.Hesitation
		b.Precision = h.Precision
		b.HelpSeeking = h.HelpSeekingFrequency
		b.ScrollFrequency = h.ScrollFrequency
	}
	b.PriorErrorRate = b.ErrorRate
	return b
}

func (m *Manager) loadHistory(ctx context.Context, userID string) *model.UserHistory {
	data, err := m.get(ctx, store.UserKey(userID))
	if err != nil || data == nil {
		return nil
	}
	var h model.UserHistory
	if err := json.Unmarshal(data, &h); err != nil {
		metrics.PersistenceFailures.WithLabelValues("decode").Inc()
		log.Warn().Err(err).Str("user_id", userID).Msg("Discarding corrupt user history")
		return nil
	}
	return &h
}

func (m *Manager) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()

	data, err := m.store.Get(ctx, key)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("get").Inc()
		log.Warn().Err(err).Str("key", key).Msg("Persistence read failed, continuing without stored state")
		return nil, err
	}
	return data, nil
}

func (m *Manager) set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()
	return m.store.Set(ctx, key, value)
}

// updateHistory folds summary into the user's history. The per-user lock
// serialises writers in this process; stores implementing store.Updater
// also make the read-modify-write atomic across processes.
func (m *Manager) updateHistory(ctx context.Context, userID string, summary model.SessionSummary) error {
	unlock := m.users.Lock(userID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, m.persistTimeout)
	defer cancel()

	key := store.UserKey(userID)
	fn := func(current []byte) ([]byte, error) {
		var h model.UserHistory
		if current != nil {
			if err := json.Unmarshal(current, &h); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("Replacing corrupt user history")
				h = model.UserHistory{}
			}
		}
		h.UserID = userID
		h.Upsert(summary)
		if last := summary.StartTime + summary.Duration; last > h.LastVisit {
			h.LastVisit = last
		}
		return json.Marshal(h)
	}

	if u, ok := m.store.(store.Updater); ok {
		return u.Update(ctx, key, fn)
	}

	current, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, next)
}

// History returns the stored history of userID, or nil when there is none
func (m *Manager) History(ctx context.Context, userID string) *model.UserHistory {
	return m.loadHistory(ctx, userID)
}

// keyedMutex hands out one mutex per key and drops it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
