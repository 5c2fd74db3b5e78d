// Package api exposes the HTTP surface: the campaign trigger, the gateway
// webhooks, internal single-send endpoints, and minimal campaign CRUD.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/outreach/internal/audit"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/consent"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/scheduler"
	"github.com/ignite/outreach/internal/webhook"
)

// Error codes returned in the body of non-2xx responses.
const (
	CodeInvalidPhone       = "INVALID_PHONE_FORMAT"
	CodeMessageTooLong     = "MESSAGE_TOO_LONG"
	CodeInvalidEmail       = "INVALID_EMAIL_FORMAT"
	CodeSubjectTooLong     = "SUBJECT_TOO_LONG"
	CodeConsentDenied      = "CONSENT_DENIED"
	CodeConsentCheckFailed = "CONSENT_CHECK_FAILED"
	CodeTwilioError        = "TWILIO_ERROR"
	CodeSendGridError      = "SENDGRID_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
)

// Trigger runs due campaigns. Implemented by scheduler.Scheduler.
type Trigger interface {
	TriggerDue(ctx context.Context, campaignID string) (*scheduler.Report, error)
}

// CampaignStore is the campaign surface the CRUD handlers need.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Create(ctx context.Context, c *domain.Campaign) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// MessageStore is the message surface the single-send and listing handlers
// need.
type MessageStore interface {
	CreateBatch(ctx context.Context, msgs []*domain.Message) error
	MarkSent(ctx context.Context, id, externalID, providerStatus string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	ListByCampaign(ctx context.Context, campaignID string, statuses []domain.MessageStatus, limit, offset int) ([]domain.Message, error)
}

// RateGate is the non-blocking rate check used by the single-send
// endpoints; a denial maps to 429 rather than a wait.
type RateGate interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
}

// ConsentChecker gates single sends when a member id is supplied.
type ConsentChecker interface {
	CanSendSMS(ctx context.Context, memberID, timezone string) (consent.Decision, error)
	CanSendEmail(ctx context.Context, memberID string) (consent.Decision, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	cfg        *config.Config
	trigger    Trigger
	campaigns  CampaignStore
	messages   MessageStore
	reconciler *webhook.Reconciler
	twilioSig  *webhook.TwilioVerifier
	sgSig      *webhook.SendGridVerifier
	gate       ConsentChecker
	sms        dispatch.SMSSender
	email      dispatch.EmailSender
	rates      RateGate
	auditor    audit.Appender
	startedAt  time.Time
}

// NewHandlers wires the handler set. Optional collaborators (rates, sgSig,
// gate, auditor) may be nil.
func NewHandlers(cfg *config.Config, trigger Trigger, campaigns CampaignStore, messages MessageStore,
	reconciler *webhook.Reconciler, sgSig *webhook.SendGridVerifier, gate ConsentChecker,
	sms dispatch.SMSSender, email dispatch.EmailSender, rates RateGate, auditor audit.Appender) *Handlers {
	return &Handlers{
		cfg:        cfg,
		trigger:    trigger,
		campaigns:  campaigns,
		messages:   messages,
		reconciler: reconciler,
		twilioSig:  webhook.NewTwilioVerifier(cfg.Twilio.AuthToken),
		sgSig:      sgSig,
		gate:       gate,
		sms:        sms,
		email:      email,
		rates:      rates,
		auditor:    auditor,
		startedAt:  time.Now(),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handlers) bearerOK(r *http.Request) bool {
	token := h.cfg.Auth.APIToken
	if token == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return secureEqual(strings.TrimPrefix(header, prefix), token)
}

func (h *Handlers) cronOK(r *http.Request) bool {
	secret := h.cfg.Auth.CronSecret
	return secret != "" && secureEqual(r.Header.Get("X-Cron-Secret"), secret)
}

// RequireBearer guards the internal API routes.
func (h *Handlers) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.bearerOK(r) {
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) audit(ctx context.Context, ev audit.Event) {
	if h.auditor == nil {
		return
	}
	_ = h.auditor.Append(ctx, ev)
}
