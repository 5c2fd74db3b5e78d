package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/consent"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/provider"
)

// Options tunes the batch cadence. Zero values fall back to safe defaults.
type Options struct {
	// Rates maps each channel to its batch size, which equals its per-second
	// send rate.
	Rates map[domain.Channel]int
	// BatchInterval is the pause between consecutive batches.
	BatchInterval time.Duration
	// BaseURL is the public URL of this service, used to build the Twilio
	// status callback and email unsubscribe links.
	BaseURL string
}

// Result summarizes one campaign dispatch.
type Result struct {
	TotalRecipients int               `json:"total_recipients"`
	Created         int               `json:"created"`
	Sent            int               `json:"sent"`
	Failed          int               `json:"failed"`
	// Errors maps message id to failure reason.
	Errors map[string]string `json:"errors,omitempty"`
}

// FinalStatus is the campaign status the dispatch outcome warrants: failed
// only when there were recipients and not one message went out.
func (r *Result) FinalStatus() domain.CampaignStatus {
	if r.TotalRecipients > 0 && r.Sent == 0 {
		return domain.CampaignStatusFailed
	}
	return domain.CampaignStatusSent
}

// Dispatcher sends one claimed campaign to its audience.
type Dispatcher struct {
	campaigns CampaignStore
	messages  MessageStore
	directory Directory
	gate      ConsentGate
	renderer  *Renderer
	sms       SMSSender
	email     EmailSender
	limiter   RateLimiter
	sleeper   Sleeper
	opts      Options
}

// NewDispatcher wires a dispatcher. limiter may be nil when no shared rate
// limiting is available; batching alone then bounds the send rate.
func NewDispatcher(campaigns CampaignStore, messages MessageStore, directory Directory,
	gate ConsentGate, sms SMSSender, email EmailSender, limiter RateLimiter, opts Options) *Dispatcher {
	if opts.BatchInterval <= 0 {
		opts.BatchInterval = time.Second
	}
	return &Dispatcher{
		campaigns: campaigns,
		messages:  messages,
		directory: directory,
		gate:      gate,
		renderer:  NewRenderer(),
		sms:       sms,
		email:     email,
		limiter:   limiter,
		sleeper:   ClockSleeper{},
		opts:      opts,
	}
}

// WithSleeper replaces the inter-batch sleeper. Tests use this to observe
// the cadence without waiting.
func (d *Dispatcher) WithSleeper(s Sleeper) *Dispatcher {
	d.sleeper = s
	return d
}

func (d *Dispatcher) batchSize(ch domain.Channel) int {
	if n := d.opts.Rates[ch]; n > 0 {
		return n
	}
	return 10
}

// Run resolves the campaign audience, creates the per-recipient message
// rows, and sends them in rate-limited batches. Individual failures are
// recorded per message and never abort the campaign.
func (d *Dispatcher) Run(ctx context.Context, campaign *domain.Campaign) (*Result, error) {
	recipients, err := d.directory.Audience(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	result := &Result{TotalRecipients: len(recipients), Errors: map[string]string{}}
	if err := d.campaigns.SetTotalRecipients(ctx, campaign.ID, len(recipients)); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return result, nil
	}

	msgs := make([]*domain.Message, len(recipients))
	for i, r := range recipients {
		msgs[i] = &domain.Message{
			ID:               uuid.New().String(),
			CampaignID:       campaign.ID,
			MemberID:         r.MemberID,
			Channel:          campaign.Channel,
			RecipientAddress: r.Address(campaign.Channel),
			Status:           domain.MessageQueued,
		}
	}
	if err := d.messages.CreateBatch(ctx, msgs); err != nil {
		return nil, fmt.Errorf("create messages: %w", err)
	}
	result.Created = len(msgs)

	// Each batch is sent with one goroutine per message, so the in-flight
	// send count equals the batch size. Outcomes land in per-index slots;
	// the shared result is only touched after the batch drains.
	outcomes := make([]sendOutcome, len(msgs))
	batchSize := d.batchSize(campaign.Channel)
	for start := 0; start < len(msgs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if start > 0 {
			d.sleeper.Sleep(ctx, d.opts.BatchInterval)
		}
		end := start + batchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				outcomes[idx] = d.sendOne(ctx, campaign, msgs[idx], &recipients[idx])
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if outcomes[i].sent {
				result.Sent++
			} else {
				result.Failed++
				result.Errors[msgs[i].ID] = outcomes[i].reason
			}
		}
	}

	log.Printf("[Dispatcher] Campaign %s done: %d sent, %d failed of %d",
		campaign.ID, result.Sent, result.Failed, result.TotalRecipients)
	return result, nil
}

// sendOutcome is the per-message verdict a batch goroutine writes into its
// own slot.
type sendOutcome struct {
	sent   bool
	reason string
}

func (d *Dispatcher) sendOne(ctx context.Context, campaign *domain.Campaign, msg *domain.Message, r *domain.Recipient) sendOutcome {
	if msg.RecipientAddress == "" {
		return d.fail(ctx, campaign, msg, "no "+string(campaign.Channel)+" address on file")
	}

	var decision consent.Decision
	var err error
	if campaign.Channel == domain.ChannelEmail {
		decision, err = d.gate.CanSendEmail(ctx, r.MemberID)
	} else {
		decision, err = d.gate.CanSendSMS(ctx, r.MemberID, r.Timezone)
	}
	if err != nil {
		return d.fail(ctx, campaign, msg, "consent check failed: "+err.Error())
	}
	if !decision.CanSend {
		return d.fail(ctx, campaign, msg, decision.Reason)
	}

	if d.limiter != nil {
		// A limiter backend error is never fatal for the message: the
		// batch cadence already bounds the send rate locally.
		if err := d.limiter.Acquire(ctx, campaign.Channel); err != nil {
			log.Printf("[Dispatcher] Rate limiter for %s: %v", campaign.ID, err)
		}
	}

	body, err := d.renderer.Render(campaign.ID, campaign.BodyTemplate, r.TemplateVars())
	if err != nil {
		return d.fail(ctx, campaign, msg, "template render: "+err.Error())
	}

	var sendRes *provider.Result
	switch campaign.Channel {
	case domain.ChannelSMS:
		sendRes, err = d.sms.Send(ctx, msg.RecipientAddress, body, d.opts.BaseURL+"/webhooks/twilio/status")
	case domain.ChannelEmail:
		sendRes, err = d.email.Send(ctx, &provider.EmailMessage{
			To:             msg.RecipientAddress,
			Subject:        campaign.Subject,
			TextBody:       body,
			UnsubscribeURL: d.opts.BaseURL + "/unsubscribe?mid=" + msg.ID,
			CustomArgs: map[string]string{
				"campaign_id": campaign.ID,
				"message_id":  msg.ID,
				"member_id":   msg.MemberID,
			},
		})
	default:
		err = fmt.Errorf("unknown channel %q", campaign.Channel)
	}
	if err != nil {
		log.Printf("[Dispatcher] Send to %s failed: %v", logger.RedactAddress(msg.RecipientAddress), err)
		return d.fail(ctx, campaign, msg, err.Error())
	}

	if err := d.messages.MarkSent(ctx, msg.ID, sendRes.ExternalID, sendRes.ProviderStatus); err != nil {
		log.Printf("[Dispatcher] Mark sent %s: %v", msg.ID, err)
	}
	if err := d.campaigns.IncrementCounter(ctx, campaign.ID, "total_sent"); err != nil {
		log.Printf("[Dispatcher] Increment sent counter for %s: %v", campaign.ID, err)
	}
	msg.Status = domain.MessageSent
	msg.ExternalID = sendRes.ExternalID
	return sendOutcome{sent: true}
}

func (d *Dispatcher) fail(ctx context.Context, campaign *domain.Campaign, msg *domain.Message, reason string) sendOutcome {
	if err := d.messages.MarkFailed(ctx, msg.ID, reason); err != nil {
		log.Printf("[Dispatcher] Mark failed %s: %v", msg.ID, err)
	}
	if err := d.campaigns.IncrementCounter(ctx, campaign.ID, "total_failed"); err != nil {
		log.Printf("[Dispatcher] Increment failed counter for %s: %v", campaign.ID, err)
	}
	msg.Status = domain.MessageFailed
	msg.ErrorMessage = reason
	return sendOutcome{reason: reason}
}
