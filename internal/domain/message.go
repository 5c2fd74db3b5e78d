package domain

import "time"

// MessageStatus enumerates the lifecycle states of a single message.
//
// The happy path is queued, sent, delivered, opened, clicked (email;
// SMS typically stops at delivered). failed and bounced are terminal and
// reachable from any non-terminal state. Status only ever moves forward:
// gateways deliver webhook events at-least-once and out of order, so every
// transition is applied as "set if later in the ordering".
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageOpened    MessageStatus = "opened"
	MessageClicked   MessageStatus = "clicked"
	MessageBounced   MessageStatus = "bounced"
	MessageFailed    MessageStatus = "failed"
)

// messageStatusRank orders statuses for forward-only transitions.
// failed/bounced rank above everything so a late bounce still records,
// while Terminal() prevents any transition out of them.
var messageStatusRank = map[MessageStatus]int{
	MessageQueued:    0,
	MessageSent:      1,
	MessageDelivered: 2,
	MessageOpened:    3,
	MessageClicked:   4,
	MessageBounced:   5,
	MessageFailed:    5,
}

// Rank returns the position of the status in the forward ordering.
// Unknown statuses rank below queued.
func (s MessageStatus) Rank() int {
	if r, ok := messageStatusRank[s]; ok {
		return r
	}
	return -1
}

// Terminal returns true for statuses that permit no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == MessageFailed || s == MessageBounced
}

// CanTransition reports whether a message may move from one status to
// another. Equal-rank transitions are rejected, which makes redundant
// webhook deliveries a no-op.
func CanTransition(from, to MessageStatus) bool {
	if from.Terminal() {
		return false
	}
	return to.Rank() > from.Rank()
}

// TimestampColumn returns the messages table column that records when the
// given status was reached, or "" for statuses without one.
func (s MessageStatus) TimestampColumn() string {
	switch s {
	case MessageQueued:
		return "queued_at"
	case MessageSent:
		return "sent_at"
	case MessageDelivered:
		return "delivered_at"
	case MessageOpened:
		return "opened_at"
	case MessageClicked:
		return "clicked_at"
	case MessageBounced, MessageFailed:
		return "failed_at"
	}
	return ""
}

// Message is the per-recipient delivery record for one campaign. Messages
// are created in bulk when a campaign is dispatched and are never deleted;
// they form the immutable delivery history.
type Message struct {
	ID         string  `json:"id" db:"id"`
	CampaignID string  `json:"campaign_id" db:"campaign_id"`
	MemberID   string  `json:"member_id" db:"member_id"`
	Channel    Channel `json:"channel" db:"channel"`

	// RecipientAddress is snapshotted at creation so later edits to the
	// member's contact info don't rewrite delivery history.
	RecipientAddress string        `json:"recipient_address" db:"recipient_address"`
	Status           MessageStatus `json:"status" db:"status"`

	QueuedAt    time.Time  `json:"queued_at" db:"queued_at"`
	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at" db:"delivered_at"`
	OpenedAt    *time.Time `json:"opened_at" db:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at" db:"clicked_at"`
	FailedAt    *time.Time `json:"failed_at" db:"failed_at"`

	// ExternalID is the gateway's message identifier, set after a
	// successful send. Webhook events correlate back through it.
	ExternalID     string `json:"external_id" db:"external_id"`
	ProviderStatus string `json:"provider_status" db:"provider_status"`
	ErrorMessage   string `json:"error_message" db:"error_message"`
}

// CounterForStatus maps a message status transition to the campaign
// aggregate counter it feeds, or "" when no counter applies.
func CounterForStatus(s MessageStatus) string {
	switch s {
	case MessageSent:
		return "total_sent"
	case MessageDelivered:
		return "total_delivered"
	case MessageOpened:
		return "total_opened"
	case MessageClicked:
		return "total_clicked"
	case MessageBounced:
		return "total_bounced"
	case MessageFailed:
		return "total_failed"
	}
	return ""
}
