// Package inference calls the external ML service for adaptation decisions
// and falls back to the rule engine when it cannot be used.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gosight/formsight/internal/config"
	"github.com/gosight/formsight/internal/metrics"
	"github.com/gosight/formsight/internal/model"
)

// Request is the body sent to the inference service
type Request struct {
	SessionID   string                `json:"sessionId"`
	Events      []model.BehaviorEvent `json:"events"`
	UserProfile *model.UserProfile    `json:"userProfile,omitempty"`
	FormContext FormContext           `json:"formContext"`
}

// FormContext describes the form the decision is for
type FormContext struct {
	FormID        string   `json:"formId"`
	URL           string   `json:"url,omitempty"`
	DeviceType    string   `json:"deviceType,omitempty"`
	FieldsTouched []string `json:"fieldsTouched,omitempty"`
}

// Response is the body returned by the inference service
type Response struct {
	Success     bool               `json:"success"`
	Adaptations []model.Adaptation `json:"adaptations"`
	Error       string             `json:"error,omitempty"`
}

// UpstreamInferenceError means the ML service could not produce a usable
// decision. Callers fall back to the rule engine.
type UpstreamInferenceError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *UpstreamInferenceError) Error() string {
	msg := "inference: " + e.Reason
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamInferenceError) Unwrap() error {
	return e.Err
}

// Predictor produces adaptations for a request
type Predictor interface {
	Predict(ctx context.Context, req Request) ([]model.Adaptation, error)
}

// Client is the HTTP client of the inference service
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient creates a client. Every call is bounded by cfg.Timeout.
func NewClient(cfg config.InferenceConfig) *Client {
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Predict posts req and returns the proposed adaptations. Transport
// failures, non-2xx answers, success=false and empty lists are all reported
// as *UpstreamInferenceError.
func (c *Client) Predict(ctx context.Context, req Request) ([]model.Adaptation, error) {
	start := time.Now()
	adaptations, err := c.predict(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.InferenceDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return adaptations, err
}

func (c *Client) predict(ctx context.Context, req Request) ([]model.Adaptation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &UpstreamInferenceError{Reason: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamInferenceError{Reason: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &UpstreamInferenceError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamInferenceError{StatusCode: resp.StatusCode, Reason: "unexpected status"}
	}

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, &UpstreamInferenceError{StatusCode: resp.StatusCode, Reason: "decode response", Err: err}
	}
	if !out.Success {
		reason := "service reported failure"
		if out.Error != "" {
			reason += ": " + out.Error
		}
		return nil, &UpstreamInferenceError{StatusCode: resp.StatusCode, Reason: reason}
	}
	if len(out.Adaptations) == 0 {
		return nil, &UpstreamInferenceError{StatusCode: resp.StatusCode, Reason: "no adaptations returned"}
	}
	return out.Adaptations, nil
}
