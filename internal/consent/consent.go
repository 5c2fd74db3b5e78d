// Package consent gates every outbound send on recipient permission.
//
// The consent data itself lives in an external store; this package owns the
// decision logic that combines the stored flags with the regulatory rules:
// quiet hours for SMS (TCPA), unsubscribe honoring for email (CAN-SPAM).
// A denial is a terminal per-message failure, never a retryable condition.
package consent

import (
	"context"
	"fmt"
	"time"
)

// Quiet hours window for SMS, in the recipient's local time. Sends are
// allowed from QuietHoursEnd up to (exclusive) QuietHoursStart.
const (
	QuietHoursEnd   = 8  // 08:00 local: first allowed hour
	QuietHoursStart = 21 // 21:00 local: first blocked hour
)

// Decision is the outcome of a consent check.
type Decision struct {
	CanSend bool   `json:"can_send"`
	Reason  string `json:"reason,omitempty"`
}

// Store is the external consent store collaborator.
type Store interface {
	// SMSConsent returns the stored SMS flags for a member.
	SMSConsent(ctx context.Context, memberID string) (granted, optedOut bool, err error)
	// EmailConsent returns the stored email flags for a member.
	EmailConsent(ctx context.Context, memberID string) (granted, unsubscribed bool, err error)
	// RecordEmailOptOut registers an unsubscribe/spam-report opt-out for
	// an email address.
	RecordEmailOptOut(ctx context.Context, email, reason string) error
}

// Gate evaluates per-channel consent decisions. The clock is injectable for
// quiet-hours tests.
type Gate struct {
	store Store
	now   func() time.Time
}

// NewGate creates a consent gate over the given store.
func NewGate(store Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// WithClock overrides the gate's clock. Intended for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// CanSendSMS decides whether an SMS may be sent to the member right now.
// It requires granted consent, no opt-out, and the current time in the
// recipient's local timezone to fall inside the allowed window. An unknown
// timezone falls back to UTC rather than blocking the send.
func (g *Gate) CanSendSMS(ctx context.Context, memberID, timezone string) (Decision, error) {
	granted, optedOut, err := g.store.SMSConsent(ctx, memberID)
	if err != nil {
		return Decision{}, fmt.Errorf("sms consent lookup for member %s: %w", memberID, err)
	}
	if !granted {
		return Decision{Reason: "sms consent not granted"}, nil
	}
	if optedOut {
		return Decision{Reason: "recipient opted out of sms"}, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	if hour := g.now().In(loc).Hour(); hour < QuietHoursEnd || hour >= QuietHoursStart {
		return Decision{Reason: fmt.Sprintf("outside allowed hours (%02d:00-%02d:00 local)", QuietHoursEnd, QuietHoursStart)}, nil
	}

	return Decision{CanSend: true}, nil
}

// CanSendEmail decides whether an email may be sent to the member.
func (g *Gate) CanSendEmail(ctx context.Context, memberID string) (Decision, error) {
	granted, unsubscribed, err := g.store.EmailConsent(ctx, memberID)
	if err != nil {
		return Decision{}, fmt.Errorf("email consent lookup for member %s: %w", memberID, err)
	}
	if !granted {
		return Decision{Reason: "email consent not granted"}, nil
	}
	if unsubscribed {
		return Decision{Reason: "recipient unsubscribed"}, nil
	}
	return Decision{CanSend: true}, nil
}

// RecordEmailOptOut forwards an opt-out to the store. Called by the email
// webhook handler on unsubscribe and spam-report events.
func (g *Gate) RecordEmailOptOut(ctx context.Context, email, reason string) error {
	return g.store.RecordEmailOptOut(ctx, email, reason)
}
