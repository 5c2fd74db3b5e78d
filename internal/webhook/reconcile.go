package webhook

import (
	"context"
	"log"
	"strings"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// MessageStore is the message surface the reconciler needs. Implemented by
// repository/postgres.MessageRepo.
type MessageStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Message, error)
	// ApplyStatus performs a forward-only transition and reports whether it
	// was applied. Replays and out-of-order events return false.
	ApplyStatus(ctx context.Context, id string, to domain.MessageStatus, providerStatus string) (bool, error)
}

// CounterStore increments campaign aggregate counters.
type CounterStore interface {
	IncrementCounter(ctx context.Context, id, field string) error
}

// OptOutRecorder records email opt-outs. Implemented by consent.Gate.
type OptOutRecorder interface {
	RecordEmailOptOut(ctx context.Context, email, reason string) error
}

// twilioStatusMap maps Twilio message status words to canonical statuses.
// Adding a provider means adding one table like this, nothing else.
var twilioStatusMap = map[string]domain.MessageStatus{
	"queued":      domain.MessageSent,
	"sending":     domain.MessageSent,
	"sent":        domain.MessageSent,
	"delivered":   domain.MessageDelivered,
	"undelivered": domain.MessageFailed,
	"failed":      domain.MessageFailed,
}

// sendgridEventMap maps SendGrid event names to canonical statuses.
// deferred stays at sent: the message is still in flight. unsubscribe and
// spamreport imply the message reached the inbox, so they record delivered;
// their real effect is the consent opt-out side effect.
var sendgridEventMap = map[string]domain.MessageStatus{
	"processed":   domain.MessageSent,
	"deferred":    domain.MessageSent,
	"delivered":   domain.MessageDelivered,
	"open":        domain.MessageOpened,
	"click":       domain.MessageClicked,
	"bounce":      domain.MessageFailed,
	"dropped":     domain.MessageFailed,
	"unsubscribe": domain.MessageDelivered,
	"spamreport":  domain.MessageDelivered,
}

// SendGridEvent is one entry of the event webhook's JSON array.
type SendGridEvent struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
	Reason      string `json:"reason,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Summary counts what one webhook delivery did.
type Summary struct {
	Processed int // events seen
	Applied   int // transitions that changed a message
	Skipped   int // unknown events, unmatched ids, replays
}

// Reconciler applies gateway delivery events to message and campaign state.
// It is stateless and safe for concurrent use; idempotency comes from the
// store's rank-guarded transitions.
type Reconciler struct {
	messages  MessageStore
	campaigns CounterStore
	optOuts   OptOutRecorder
}

// NewReconciler wires a reconciler. optOuts may be nil when no consent
// store is configured; opt-out events are then logged and dropped.
func NewReconciler(messages MessageStore, campaigns CounterStore, optOuts OptOutRecorder) *Reconciler {
	return &Reconciler{messages: messages, campaigns: campaigns, optOuts: optOuts}
}

// ProcessTwilioStatus applies one SMS status callback. Unknown statuses and
// unmatched sids are logged and skipped, never errors: the gateway retries
// on non-200 and a retry would not fix either condition.
func (r *Reconciler) ProcessTwilioStatus(ctx context.Context, messageSid, messageStatus, errorCode string) Summary {
	s := Summary{Processed: 1}

	to, ok := twilioStatusMap[strings.ToLower(messageStatus)]
	if !ok {
		log.Printf("[Webhook] Unknown twilio status %q for %s", messageStatus, messageSid)
		s.Skipped++
		return s
	}

	providerStatus := messageStatus
	if errorCode != "" {
		providerStatus = messageStatus + " (" + errorCode + ")"
	}

	if r.apply(ctx, messageSid, to, providerStatus) {
		s.Applied++
	} else {
		s.Skipped++
	}
	return s
}

// ProcessSendGridEvents applies a batch of email events. Each event is
// independent; one bad event never blocks the rest.
func (r *Reconciler) ProcessSendGridEvents(ctx context.Context, events []SendGridEvent) Summary {
	var s Summary
	for _, ev := range events {
		s.Processed++

		event := strings.ToLower(ev.Event)
		if event == "unsubscribe" || event == "spamreport" {
			r.recordOptOut(ctx, ev.Email, event)
		}

		to, ok := sendgridEventMap[event]
		if !ok {
			log.Printf("[Webhook] Unknown sendgrid event %q for %s", ev.Event, logger.RedactEmail(ev.Email))
			s.Skipped++
			continue
		}

		// sg_message_id carries routing suffixes after the first dot; the
		// prefix is the X-Message-Id we stored at send time.
		externalID := ev.SGMessageID
		if i := strings.IndexByte(externalID, '.'); i >= 0 {
			externalID = externalID[:i]
		}
		if externalID == "" {
			s.Skipped++
			continue
		}

		providerStatus := event
		if ev.Reason != "" {
			providerStatus = event + ": " + ev.Reason
		}

		if r.apply(ctx, externalID, to, providerStatus) {
			s.Applied++
		} else {
			s.Skipped++
		}
	}
	return s
}

// apply locates a message by gateway id and performs the transition,
// bumping the matching campaign counter only when the transition actually
// changed the row. That guard is what keeps replayed webhook deliveries
// from double counting.
func (r *Reconciler) apply(ctx context.Context, externalID string, to domain.MessageStatus, providerStatus string) bool {
	msg, err := r.messages.FindByExternalID(ctx, externalID)
	if err != nil {
		log.Printf("[Webhook] No message for gateway id %s: %v", externalID, err)
		return false
	}

	applied, err := r.messages.ApplyStatus(ctx, msg.ID, to, providerStatus)
	if err != nil {
		log.Printf("[Webhook] Apply %s to message %s: %v", to, msg.ID, err)
		return false
	}
	if !applied {
		return false
	}

	if field := domain.CounterForStatus(to); field != "" {
		if err := r.campaigns.IncrementCounter(ctx, msg.CampaignID, field); err != nil {
			log.Printf("[Webhook] Increment %s for campaign %s: %v", field, msg.CampaignID, err)
		}
	}
	return true
}

func (r *Reconciler) recordOptOut(ctx context.Context, email, reason string) {
	if r.optOuts == nil || email == "" {
		return
	}
	if err := r.optOuts.RecordEmailOptOut(ctx, email, reason); err != nil {
		log.Printf("[Webhook] Record opt-out for %s: %v", logger.RedactEmail(email), err)
	} else {
		log.Printf("[Webhook] Opt-out recorded for %s (%s)", logger.RedactEmail(email), reason)
	}
}
