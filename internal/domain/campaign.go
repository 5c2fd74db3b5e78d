package domain

import "time"

// Channel identifies the delivery channel for a campaign or message.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Valid reports whether the channel is one of the supported channels.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign represents a scheduled bulk-send job targeting a resolved
// recipient set over one channel.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Channel      Channel        `json:"channel" db:"channel"`
	Subject      string         `json:"subject" db:"subject"`
	BodyTemplate string         `json:"body_template" db:"body_template"`
	Status       CampaignStatus `json:"status" db:"status"`
	// ScheduledAt is the zero time for drafts with no schedule; the column
	// is nullable and mapped through COALESCE on read.
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`

	// Targeting rule, passed opaquely to the recipient directory.
	AudienceFilter string `json:"audience_filter" db:"audience_filter"`

	// Aggregate counters (monotonically non-decreasing, maintained by the
	// trigger handler and the webhook ingest handlers).
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	TotalSent       int `json:"total_sent" db:"total_sent"`
	TotalDelivered  int `json:"total_delivered" db:"total_delivered"`
	TotalFailed     int `json:"total_failed" db:"total_failed"`
	TotalOpened     int `json:"total_opened" db:"total_opened"`
	TotalClicked    int `json:"total_clicked" db:"total_clicked"`
	TotalBounced    int `json:"total_bounced" db:"total_bounced"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusSent || c.Status == CampaignStatusFailed || c.Status == CampaignStatusCancelled
}

// Cancellable returns true if the campaign can still be cancelled.
// Once claimed for sending, a campaign runs to completion.
func (c *Campaign) Cancellable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusScheduled
}
