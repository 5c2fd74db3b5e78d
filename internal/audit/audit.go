// Package audit records campaign lifecycle events for operational
// traceability. Entries are append-only; recipient addresses are masked
// before they are written.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// Event types recorded by the scheduler and webhook handlers.
const (
	EventCampaignClaimed   = "campaign_claimed"
	EventCampaignCompleted = "campaign_completed"
	EventCampaignSkipped   = "campaign_skipped"
	EventOptOutRecorded    = "opt_out_recorded"
)

// Event is one audit trail entry.
type Event struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Type       string    `json:"type"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Appender writes audit events. Append failures must never fail the
// operation being audited; callers log and move on.
type Appender interface {
	Append(ctx context.Context, ev Event) error
}

// MaskedDetail builds a detail string containing a recipient address,
// masking it first.
func MaskedDetail(prefix, address string) string {
	return fmt.Sprintf("%s %s", prefix, logger.RedactAddress(address))
}

// PostgresAppender writes events to the audit_events table.
type PostgresAppender struct{ db *sql.DB }

// NewPostgresAppender creates a Postgres-backed audit appender.
func NewPostgresAppender(db *sql.DB) *PostgresAppender { return &PostgresAppender{db: db} }

func (a *PostgresAppender) Append(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, campaign_id, event_type, detail, occurred_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5)
	`, ev.ID, ev.CampaignID, ev.Type, ev.Detail, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// MemoryAppender collects events in memory for tests.
type MemoryAppender struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryAppender creates an empty in-memory appender.
func NewMemoryAppender() *MemoryAppender { return &MemoryAppender{} }

func (a *MemoryAppender) Append(ctx context.Context, ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	a.events = append(a.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (a *MemoryAppender) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}
