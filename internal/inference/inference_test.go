package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/detect"
	"github.com/gosight/formsight/internal/model"
	"github.com/gosight/formsight/internal/session"
	"github.com/gosight/formsight/internal/store"
)

const uaDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var fixedNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu        sync.Mutex
	published []model.Adaptation
	sunk      []model.Adaptation
	fail      bool
}

func (r *recorder) PublishAdaptations(_ context.Context, a []model.Adaptation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.published = append(r.published, a...)
	return nil
}

func (r *recorder) AddAdaptations(a []model.Adaptation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sunk = append(r.sunk, a...)
}

func strugglingSession(t *testing.T) *session.Session {
	t.Helper()
	m, err := session.NewManager(store.NewMemoryStore(100, time.Hour), config.DefaultScoring(), session.Options{
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	probe := detect.StaticProbe{UserAgent: uaDesktop, ViewportWidth: 1440, ViewportHeight: 900, Now: fixedNow}
	sess, err := m.Initialize(context.Background(), "s1", "", probe)
	require.NoError(t, err)

	for i, et := range []model.EventType{model.EventFocus, model.EventHelpRequest, model.EventHelpRequest} {
		require.NoError(t, sess.Ingest(context.Background(), model.BehaviorEvent{
			SessionID: "s1", FormID: "checkout", EventType: et, FieldName: "email", Timestamp: int64(1000 + i*500),
		}))
	}
	return sess
}

func newClient(url string, timeout time.Duration) *Client {
	return NewClient(config.InferenceConfig{URL: url, Timeout: timeout, APIKey: "secret"})
}

func TestAdaptUsesMLWhenAvailable(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{
			Success: true,
			Adaptations: []model.Adaptation{{
				AdaptationType: model.AdaptationFieldReorder,
				Confidence:     0.9,
				Config:         model.AdaptationConfig{FieldReorder: &model.FieldReorderConfig{Order: []string{"email", "name"}}},
			}},
		})
	}))
	defer srv.Close()

	rec := &recorder{}
	svc := NewService(newClient(srv.URL, time.Second), WithPublisher(rec), WithSink(rec), WithClock(func() time.Time { return fixedNow }))
	sess := strugglingSession(t)

	res, err := svc.Adapt(context.Background(), sess, "checkout")
	require.NoError(t, err)

	assert.Equal(t, model.SourceML, res.Source)
	require.Len(t, res.Adaptations, 1)
	a := res.Adaptations[0]
	assert.Equal(t, model.AdaptationFieldReorder, a.AdaptationType)
	assert.Equal(t, model.SourceML, a.Source())
	assert.Equal(t, "s1", a.SessionID)
	assert.Equal(t, "checkout", a.FormID)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, fixedNow.UnixMilli(), a.AppliedAt)

	assert.Equal(t, "s1", got.SessionID)
	assert.Len(t, got.Events, 3)
	assert.Equal(t, "checkout", got.FormContext.FormID)
	require.NotNil(t, got.UserProfile)
	assert.Equal(t, "struggling", got.UserProfile.UserType)

	snap := sess.Snapshot()
	require.Len(t, snap.Adaptations, 1)
	assert.Equal(t, a.ID, snap.Adaptations[0].Adaptation.ID)
	assert.Equal(t, 1, snap.Metrics.TotalAdaptations)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "struggling", snap.Profile.UserType)
	assert.Equal(t, model.DeviceDesktop, snap.Profile.DeviceType)

	assert.Len(t, rec.published, 1)
	assert.Len(t, rec.sunk, 1)
}

func TestAdaptFallsBackOnUpstreamFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{name: "reported failure", handler: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Response{Success: false, Error: "model not loaded"})
		}},
		{name: "empty list", handler: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Response{Success: true})
		}},
		{name: "only invalid proposals", handler: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Response{Success: true, Adaptations: []model.Adaptation{
				{AdaptationType: "bogus", Confidence: 0.9},
				{AdaptationType: model.AdaptationFieldReorder, Confidence: 3},
			}})
		}},
		{name: "malformed body", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			rec := &recorder{}
			svc := NewService(newClient(srv.URL, time.Second), WithPublisher(rec))
			res, err := svc.Adapt(context.Background(), strugglingSession(t), "checkout")
			require.NoError(t, err)

			assert.Equal(t, model.SourceFallback, res.Source)
			require.Len(t, res.Adaptations, 1)
			assert.Equal(t, model.AdaptationErrorPrevention, res.Adaptations[0].AdaptationType)
			assert.Equal(t, 0.7, res.Adaptations[0].Confidence)
			assert.Equal(t, model.SourceFallback, res.Adaptations[0].Source())
			assert.Len(t, rec.published, 1)
		})
	}
}

func TestAdaptDropsInvalidProposals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Success: true, Adaptations: []model.Adaptation{
			{AdaptationType: "bogus", Confidence: 0.9},
			{AdaptationType: model.AdaptationProgressiveDisclosure, Confidence: 0.6},
			{AdaptationType: model.AdaptationFieldReorder, Confidence: 1.5},
		}})
	}))
	defer srv.Close()

	sess := strugglingSession(t)
	res, err := NewService(newClient(srv.URL, time.Second)).Adapt(context.Background(), sess, "checkout")
	require.NoError(t, err)

	assert.Equal(t, model.SourceML, res.Source)
	require.Len(t, res.Adaptations, 1)
	assert.Equal(t, model.AdaptationProgressiveDisclosure, res.Adaptations[0].AdaptationType)
	assert.Len(t, sess.Snapshot().Adaptations, 1)
}

func TestAdaptWithoutPredictor(t *testing.T) {
	rec := &recorder{fail: true}
	svc := NewService(nil, WithPublisher(rec))
	sess := strugglingSession(t)

	res, err := svc.Adapt(context.Background(), sess, "")
	require.NoError(t, err)
	// form id defaults to the session's current form
	assert.Equal(t, "checkout", res.FormID)
	assert.Equal(t, model.SourceFallback, res.Source)
	require.Len(t, res.Adaptations, 1)
	// a failed publish does not undo the recorded adaptation
	assert.Len(t, sess.Snapshot().Adaptations, 1)
}

func TestAdaptUnknownFormHasNoAdaptations(t *testing.T) {
	svc := NewService(nil)
	sess := strugglingSession(t)

	res, err := svc.Adapt(context.Background(), sess, "other-form")
	require.NoError(t, err)
	assert.Empty(t, res.Adaptations)
	assert.Equal(t, "typical", res.Profile.UserType)
	assert.Empty(t, sess.Snapshot().Adaptations)
}

func TestClientErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, time.Second).Predict(context.Background(), Request{SessionID: "s1"})
	var upstream *UpstreamInferenceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
}

func TestClientTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	_, err := newClient(srv.URL, 50*time.Millisecond).Predict(context.Background(), Request{SessionID: "s1"})
	var upstream *UpstreamInferenceError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 0, upstream.StatusCode)
}
