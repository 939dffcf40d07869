package inference

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/formsight/internal/classifier"
	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/rules"
	"github.com/gosight/formsight/internal/session"
)

// Publisher ships recorded adaptations downstream (Kafka)
type Publisher interface {
	PublishAdaptations(ctx context.Context, adaptations []model.Adaptation) error
}

// Sink receives recorded adaptations for analytics (ClickHouse buffer)
type Sink interface {
	AddAdaptations(adaptations []model.Adaptation)
}

// Result is the outcome of one adaptation decision
type Result struct {
	SessionID   string             `json:"sessionId"`
	FormID      string             `json:"formId"`
	Source      string             `json:"source"`
	Profile     model.UserProfile  `json:"profile"`
	Adaptations []model.Adaptation `json:"adaptations"`
}

// Service decides adaptations for a session's form. It asks the ML
// predictor first and uses the rule engine when that fails.
type Service struct {
	predictor  Predictor
	classifier *classifier.Classifier
	rules      *rules.Engine
	publisher  Publisher
	sink       Sink
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithPublisher publishes every recorded adaptation
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithSink hands every recorded adaptation to an analytics sink
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClassifier sets the thresholds used to classify a form's events
func WithClassifier(cfg config.ClassifierConfig) Option {
	return func(s *Service) { s.classifier = classifier.New(cfg) }
}

// WithClock overrides the clock used for ClassifiedAt and AppliedAt
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. A nil predictor means ML inference is
// disabled and every decision comes from the rule engine.
func NewService(p Predictor, opts ...Option) *Service {
	s := &Service{
		predictor:  p,
		classifier: classifier.New(config.DefaultScoring().Classifier),
		rules:      rules.NewEngine(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Adapt classifies the form's events, stores the profile on the session,
// obtains adaptations and records each of them on the session. Publishing
// and the analytics sink are best effort.
func (s *Service) Adapt(ctx context.Context, sess *session.Session, formID string) (Result, error) {
	snap := sess.Snapshot()
	if formID == "" {
		formID = snap.Context.Session.FormID
	}
	events := snap.EventsForForm(formID)

	c := s.classifier.Classify(events)
	profile := model.UserProfile{
		UserType:        c.UserType,
		TypingSpeed:     c.TypingSpeed,
		NavigationStyle: c.NavigationStyle,
		Confidence:      c.Confidence,
		DeviceType:      snap.Context.Device.Type,
		ClassifiedAt:    s.now().UnixMilli(),
	}
	sess.SetProfile(ctx, profile)

	res := Result{SessionID: sess.ID(), FormID: formID, Profile: profile}
	res.Adaptations, res.Source = s.decide(ctx, sess.ID(), formID, events, &profile, snap)

	for i := range res.Adaptations {
		a := &res.Adaptations[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.SessionID = sess.ID()
		if a.FormID == "" {
			a.FormID = formID
		}
		a.AppliedAt = s.now().UnixMilli()
		stored, err := sess.RecordAdaptation(ctx, *a)
		if err != nil {
			return res, err
		}
		*a = stored
		metrics.AdaptationsGenerated.WithLabelValues(res.Source, string(a.AdaptationType)).Inc()
	}

	if len(res.Adaptations) == 0 {
		return res, nil
	}
	if s.sink != nil {
		s.sink.AddAdaptations(res.Adaptations)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAdaptations(ctx, res.Adaptations); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID()).Msg("Failed to publish adaptations")
		}
	}
	return res, nil
}

func (s *Service) decide(ctx context.Context, sessionID, formID string, events []model.BehaviorEvent, profile *model.UserProfile, snap model.SessionState) ([]model.Adaptation, string) {
	if s.predictor != nil {
		adaptations, err := s.predictor.Predict(ctx, Request{
			SessionID:   sessionID,
			Events:      events,
			UserProfile: profile,
			FormContext: FormContext{
				FormID:        formID,
				URL:           snap.Context.Session.URL,
				DeviceType:    snap.Context.Device.Type,
				FieldsTouched: snap.Context.Session.FieldsTouched,
			},
		})
		var upstream *UpstreamInferenceError
		switch {
		case err == nil:
			if valid := validProposals(sessionID, adaptations); len(valid) > 0 {
				return valid, model.SourceML
			}
			log.Warn().Str("session_id", sessionID).Int("proposals", len(adaptations)).Msg("No valid ML adaptations, using rule engine")
		case errors.As(err, &upstream):
			log.Warn().Err(err).Str("session_id", sessionID).Int("status", upstream.StatusCode).Msg("ML inference unavailable, using rule engine")
		default:
			log.Warn().Err(err).Str("session_id", sessionID).Msg("ML inference failed, using rule engine")
		}
	}

	return s.rules.Generate(rules.Input{
		SessionID:  sessionID,
		FormID:     formID,
		UserType:   profile.UserType,
		DeviceType: profile.DeviceType,
		EventCount: len(events),
	}), model.SourceFallback
}

// validProposals tags ML adaptations with their source and drops the ones
// with an unknown type or a confidence outside [0,1]
func validProposals(sessionID string, adaptations []model.Adaptation) []model.Adaptation {
	valid := make([]model.Adaptation, 0, len(adaptations))
	for _, a := range adaptations {
		md := make(map[string]string, len(a.Metadata)+1)
		for k, v := range a.Metadata {
			md[k] = v
		}
		md[model.MetadataSource] = model.SourceML
		a.Metadata = md

		if err := a.Validate(); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Dropping invalid ML adaptation")
			continue
		}
		valid = append(valid, a)
	}
	return valid
}
