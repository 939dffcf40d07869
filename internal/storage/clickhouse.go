package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosight/formsight/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// EventRow represents a row in the form_events table
type EventRow struct {
	EventID    string
	SessionID  string
	UserID     string
	FormID     string
	EventType  string
	FieldName  string
	Timestamp  time.Time
	PageURL    string
	Browser    string
	OS         string
	DeviceType string
	Country    string
	Payload    string
}

// SessionSnapshotRow represents a row in the session_snapshots table.
// The table is a ReplacingMergeTree on session_id ordered by updated_at, so
// the latest snapshot wins.
type SessionSnapshotRow struct {
	SessionID            string
	UserID               string
	FormID               string
	StartedAt            time.Time
	UpdatedAt            time.Time
	DurationMs           uint64
	EventsCount          uint32
	AdaptationsCount     uint32
	EngagementScore      float64
	ConversionLikelihood float64
	UserType             string
	DeviceType           string
	Browser              string
	IsReturningUser      uint8
	IsHighValue          uint8
	NeedsAssistance      uint8
	RiskOfAbandonment    uint8
}

// AdaptationRow represents a row in the adaptations table
type AdaptationRow struct {
	AdaptationID   string
	SessionID      string
	FormID         string
	AdaptationType string
	Source         string
	Confidence     float64
	AppliedAt      time.Time
	Config         string
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertEvents(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO form_events (
			event_id, session_id, user_id, form_id, event_type, field_name,
			timestamp, page_url, browser, os, device_type, country, payload
		)
	`)
	if err != nil {
		return err
	}

	for _, e := range events {
		err := batch.Append(
			e.EventID, e.SessionID, e.UserID, e.FormID, e.EventType, e.FieldName,
			e.Timestamp, e.PageURL, e.Browser, e.OS, e.DeviceType, e.Country, e.Payload,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertSessionSnapshots(ctx context.Context, rows []SessionSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO session_snapshots (
			session_id, user_id, form_id, started_at, updated_at, duration_ms,
			events_count, adaptations_count, engagement_score, conversion_likelihood,
			user_type, device_type, browser,
			is_returning_user, is_high_value, needs_assistance, risk_of_abandonment
		)
	`)
	if err != nil {
		return err
	}

	for _, s := range rows {
		err := batch.Append(
			s.SessionID, s.UserID, s.FormID, s.StartedAt, s.UpdatedAt, s.DurationMs,
			s.EventsCount, s.AdaptationsCount, s.EngagementScore, s.ConversionLikelihood,
			s.UserType, s.DeviceType, s.Browser,
			s.IsReturningUser, s.IsHighValue, s.NeedsAssistance, s.RiskOfAbandonment,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertAdaptations(ctx context.Context, rows []AdaptationRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO adaptations (
			adaptation_id, session_id, form_id, adaptation_type, source,
			confidence, applied_at, config
		)
	`)
	if err != nil {
		return err
	}

	for _, a := range rows {
		err := batch.Append(
			a.AdaptationID, a.SessionID, a.FormID, a.AdaptationType, a.Source,
			a.Confidence, a.AppliedAt, a.Config,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
