// Package dispatch runs the delivery of one claimed campaign: audience
// resolution, template rendering, consent gating, rate-limited batching, and
// per-message send through the channel gateways.
//
// The dispatcher is deliberately gateway-agnostic. It depends on the small
// interfaces below so tests can swap in-memory fakes for every collaborator.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/outreach/internal/consent"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/provider"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// CampaignStore is the campaign persistence surface the dispatcher and
// scheduler need. Implemented by repository/postgres.CampaignRepo.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	// DueCampaigns returns campaigns in scheduled status whose scheduled_at
	// is at or before now.
	DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	// Claim atomically moves a campaign from scheduled to sending. It
	// reports false when another worker already claimed it.
	Claim(ctx context.Context, id string) (bool, error)
	// Finalize moves a sending campaign to its terminal send status and
	// stamps completed_at.
	Finalize(ctx context.Context, id string, status domain.CampaignStatus) error
	SetTotalRecipients(ctx context.Context, id string, total int) error
	// IncrementCounter bumps one of the campaign aggregate counters. The
	// field must be one of the counter columns named by
	// domain.MessageStatus.CounterForStatus.
	IncrementCounter(ctx context.Context, id, field string) error
}

// MessageStore persists per-recipient message rows and their status
// transitions. Implemented by repository/postgres.MessageRepo.
type MessageStore interface {
	CreateBatch(ctx context.Context, msgs []*domain.Message) error
	MarkSent(ctx context.Context, id, externalID, providerStatus string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
}

// Directory resolves a campaign's audience to concrete recipients.
type Directory interface {
	Audience(ctx context.Context, campaign *domain.Campaign) ([]domain.Recipient, error)
}

// ConsentGate answers whether a message may be sent to a recipient right
// now. Implemented by consent.Gate.
type ConsentGate interface {
	CanSendSMS(ctx context.Context, memberID, timezone string) (consent.Decision, error)
	CanSendEmail(ctx context.Context, memberID string) (consent.Decision, error)
}

// SMSSender sends one SMS. Implemented by provider.TwilioClient.
type SMSSender interface {
	Send(ctx context.Context, to, body, statusCallback string) (*provider.Result, error)
}

// EmailSender sends one email. Implemented by provider.SendGridClient.
type EmailSender interface {
	Send(ctx context.Context, msg *provider.EmailMessage) (*provider.Result, error)
}

// RateLimiter bounds sends per second for a channel. Acquire blocks until a
// slot is available or the context is done.
type RateLimiter interface {
	Acquire(ctx context.Context, channel domain.Channel) error
}

// Sleeper waits between batches. Tests substitute a recording fake so the
// batch cadence is observable without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// ClockSleeper is the production Sleeper.
type ClockSleeper struct{}

func (ClockSleeper) Sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
