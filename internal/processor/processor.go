package processor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/detect"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/session"
	"github.com/gosight/formsight/internal/storage"
	"github.com/gosight/formsight/internal/transformer"
)

// Writer is the analytics sink. *storage.ClickHouse implements it.
type Writer interface {
	InsertEvents(ctx context.Context, events []storage.EventRow) error
	InsertSessionSnapshots(ctx context.Context, rows []storage.SessionSnapshotRow) error
	InsertAdaptations(ctx context.Context, rows []storage.AdaptationRow) error
}

// SessionProcessor feeds events from Kafka into the session manager and
// batches analytics rows to ClickHouse
type SessionProcessor struct {
	sessions *session.Manager
	writer   Writer
	batchCfg config.BatchConfig

	// Buffers
	eventBuffer      []storage.EventRow
	adaptationBuffer []storage.AdaptationRow
	touched          map[string]struct{}

	mu       sync.Mutex
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionProcessor creates a processor. A nil writer disables analytics
// rows; sessions are still updated.
func NewSessionProcessor(sessions *session.Manager, writer Writer, batchCfg config.BatchConfig) *SessionProcessor {
	p := &SessionProcessor{
		sessions:         sessions,
		writer:           writer,
		batchCfg:         batchCfg,
		eventBuffer:      make([]storage.EventRow, 0, batchCfg.Size),
		adaptationBuffer: make([]storage.AdaptationRow, 0, 100),
		touched:          make(map[string]struct{}),
		done:             make(chan struct{}),
	}

	// Start flush ticker
	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process ingests a single event into its session. Invalid events are
// rejected with a *model.ValidationError; the consumer logs and commits them.
func (p *SessionProcessor) Process(ctx context.Context, event map[string]interface{}) error {
	result, err := transformer.TransformEvent(event)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("processor", "malformed").Inc()
		return err
	}

	sess, err := p.sessions.Initialize(ctx, result.Event.SessionID, result.UserID, detect.StaticProbe(result.Environment))
	if err != nil {
		return err
	}
	if err := sess.Ingest(ctx, result.Event); err != nil {
		return err
	}

	if p.writer == nil {
		return nil
	}

	p.mu.Lock()
	p.eventBuffer = append(p.eventBuffer, result.Row)
	p.touched[sess.ID()] = struct{}{}
	shouldFlush := len(p.eventBuffer) >= p.batchCfg.Size
	p.mu.Unlock()

	// Flush if buffer full
	if shouldFlush {
		p.Flush()
	}

	return nil
}

// AddAdaptations buffers recorded adaptations for the adaptations table
func (p *SessionProcessor) AddAdaptations(adaptations []model.Adaptation) {
	if p.writer == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range adaptations {
		p.adaptationBuffer = append(p.adaptationBuffer, adaptationRow(a))
		p.touched[a.SessionID] = struct{}{}
	}
}

func (p *SessionProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered data to ClickHouse. Sessions touched since the
// last flush get a fresh snapshot row.
func (p *SessionProcessor) Flush() {
	if p.writer == nil {
		return
	}

	p.mu.Lock()

	// Check if there's anything to flush
	if len(p.eventBuffer) == 0 && len(p.adaptationBuffer) == 0 && len(p.touched) == 0 {
		p.mu.Unlock()
		return
	}

	// Get current buffers and create new ones
	events := p.eventBuffer
	adaptations := p.adaptationBuffer
	touched := p.touched

	p.eventBuffer = make([]storage.EventRow, 0, p.batchCfg.Size)
	p.adaptationBuffer = make([]storage.AdaptationRow, 0, 100)
	p.touched = make(map[string]struct{})
	p.mu.Unlock()

	ctx := context.Background()
	start := time.Now()

	// Insert events
	if len(events) > 0 {
		if err := p.writer.InsertEvents(ctx, events); err != nil {
			metrics.BatchFlushes.WithLabelValues("form_events", "error").Inc()
			log.Error().Err(err).Int("count", len(events)).Msg("Failed to insert events")
		} else {
			metrics.BatchFlushes.WithLabelValues("form_events", "ok").Inc()
			log.Info().
				Int("count", len(events)).
				Dur("duration", time.Since(start)).
				Msg("Flushed events to ClickHouse")
		}
	}

	// Insert session snapshots
	snapshots := make([]storage.SessionSnapshotRow, 0, len(touched))
	for id := range touched {
		sess, err := p.sessions.Lookup(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("session_id", id).Msg("Skipping snapshot for unknown session")
			continue
		}
		st := sess.Snapshot()
		snapshots = append(snapshots, snapshotRow(&st, time.Now()))
	}
	if len(snapshots) > 0 {
		if err := p.writer.InsertSessionSnapshots(ctx, snapshots); err != nil {
			metrics.BatchFlushes.WithLabelValues("session_snapshots", "error").Inc()
			log.Error().Err(err).Int("count", len(snapshots)).Msg("Failed to insert session snapshots")
		} else {
			metrics.BatchFlushes.WithLabelValues("session_snapshots", "ok").Inc()
			log.Debug().Int("count", len(snapshots)).Msg("Flushed session snapshots to ClickHouse")
		}
	}

	// Insert adaptations
	if len(adaptations) > 0 {
		if err := p.writer.InsertAdaptations(ctx, adaptations); err != nil {
			metrics.BatchFlushes.WithLabelValues("adaptations", "error").Inc()
			log.Error().Err(err).Int("count", len(adaptations)).Msg("Failed to insert adaptations")
		} else {
			metrics.BatchFlushes.WithLabelValues("adaptations", "ok").Inc()
			log.Debug().Int("count", len(adaptations)).Msg("Flushed adaptations to ClickHouse")
		}
	}
}

// Stop stops the processor
func (p *SessionProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
		p.Flush() // Final flush
	})
}

func snapshotRow(st *model.SessionState, now time.Time) storage.SessionSnapshotRow {
	row := storage.SessionSnapshotRow{
		SessionID:            st.SessionID,
		UserID:               st.UserID,
		FormID:               st.Context.Session.FormID,
		StartedAt:            time.UnixMilli(st.Context.Session.StartTime),
		UpdatedAt:            now,
		EventsCount:          uint32(st.Metrics.TotalEvents),
		AdaptationsCount:     uint32(st.Metrics.TotalAdaptations),
		EngagementScore:      st.Metrics.EngagementScore,
		ConversionLikelihood: st.Metrics.ConversionLikelihood,
		DeviceType:           st.Context.Device.Type,
		Browser:              st.Context.Browser.Name,
		IsReturningUser:      boolToUint8(st.Flags.IsReturningUser),
		IsHighValue:          boolToUint8(st.Flags.IsHighValueSession),
		NeedsAssistance:      boolToUint8(st.Flags.NeedsAssistance),
		RiskOfAbandonment:    boolToUint8(st.Flags.RiskOfAbandonment),
	}
	if st.Metrics.SessionDuration > 0 {
		row.DurationMs = uint64(st.Metrics.SessionDuration)
	}
	if st.Profile != nil {
		row.UserType = st.Profile.UserType
	}
	return row
}

func adaptationRow(a model.Adaptation) storage.AdaptationRow {
	cfg, _ := json.Marshal(a.Config)
	return storage.AdaptationRow{
		AdaptationID:   a.ID,
		SessionID:      a.SessionID,
		FormID:         a.FormID,
		AdaptationType: string(a.AdaptationType),
		Source:         a.Source(),
		Confidence:     a.Confidence,
		AppliedAt:      time.UnixMilli(a.AppliedAt),
		Config:         string(cfg),
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
