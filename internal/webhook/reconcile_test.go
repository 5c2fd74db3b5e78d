package webhook

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach/internal/domain"
)

// memStore is an in-memory MessageStore with real rank-guarded transitions.
type memStore struct {
	mu         sync.Mutex
	byExternal map[string]*domain.Message
}

func newMemStore(msgs ...*domain.Message) *memStore {
	s := &memStore{byExternal: map[string]*domain.Message{}}
	for _, m := range msgs {
		s.byExternal[m.ExternalID] = m
	}
	return s
}

func (s *memStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byExternal[externalID]
	if !ok {
		return nil, domainNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) ApplyStatus(ctx context.Context, id string, to domain.MessageStatus, providerStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byExternal {
		if m.ID != id {
			continue
		}
		if !domain.CanTransition(m.Status, to) {
			return false, nil
		}
		m.Status = to
		m.ProviderStatus = providerStatus
		return true, nil
	}
	return false, nil
}

type memCounters struct {
	mu     sync.Mutex
	counts map[string]int // campaignID + "/" + field
}

func newMemCounters() *memCounters { return &memCounters{counts: map[string]int{}} }

func (c *memCounters) IncrementCounter(ctx context.Context, id, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id+"/"+field]++
	return nil
}

type memOptOuts struct {
	mu      sync.Mutex
	optOuts map[string]string
}

func newMemOptOuts() *memOptOuts { return &memOptOuts{optOuts: map[string]string{}} }

func (o *memOptOuts) RecordEmailOptOut(ctx context.Context, email, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optOuts[email] = reason
	return nil
}

var domainNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func sentMessage(id, campaignID, externalID string) *domain.Message {
	return &domain.Message{
		ID:         id,
		CampaignID: campaignID,
		Channel:    domain.ChannelSMS,
		Status:     domain.MessageSent,
		ExternalID: externalID,
	}
}

func TestProcessTwilioStatusDelivered(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "SM0001"))
	counters := newMemCounters()
	r := NewReconciler(store, counters, nil)

	s := r.ProcessTwilioStatus(context.Background(), "SM0001", "delivered", "")
	assert.Equal(t, 1, s.Applied)

	m, _ := store.FindByExternalID(context.Background(), "SM0001")
	assert.Equal(t, domain.MessageDelivered, m.Status)
	assert.Equal(t, 1, counters.counts["c1/total_delivered"])
}

func TestProcessTwilioStatusReplayDoesNotDoubleCount(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "SM0001"))
	counters := newMemCounters()
	r := NewReconciler(store, counters, nil)

	first := r.ProcessTwilioStatus(context.Background(), "SM0001", "delivered", "")
	second := r.ProcessTwilioStatus(context.Background(), "SM0001", "delivered", "")

	assert.Equal(t, 1, first.Applied)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, counters.counts["c1/total_delivered"])
}

func TestProcessTwilioStatusNeverRegresses(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "SM0001"))
	r := NewReconciler(store, newMemCounters(), nil)

	r.ProcessTwilioStatus(context.Background(), "SM0001", "delivered", "")
	// A stale queued callback arrives after delivery.
	s := r.ProcessTwilioStatus(context.Background(), "SM0001", "queued", "")
	assert.Equal(t, 0, s.Applied)

	m, _ := store.FindByExternalID(context.Background(), "SM0001")
	assert.Equal(t, domain.MessageDelivered, m.Status)
}

func TestProcessTwilioStatusFailureWithCode(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "SM0001"))
	counters := newMemCounters()
	r := NewReconciler(store, counters, nil)

	s := r.ProcessTwilioStatus(context.Background(), "SM0001", "undelivered", "30003")
	assert.Equal(t, 1, s.Applied)

	m, _ := store.FindByExternalID(context.Background(), "SM0001")
	assert.Equal(t, domain.MessageFailed, m.Status)
	assert.Equal(t, "undelivered (30003)", m.ProviderStatus)
	assert.Equal(t, 1, counters.counts["c1/total_failed"])
}

func TestProcessTwilioStatusUnknownWords(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "SM0001"))
	r := NewReconciler(store, newMemCounters(), nil)

	s := r.ProcessTwilioStatus(context.Background(), "SM0001", "read", "")
	assert.Equal(t, 1, s.Skipped)

	s = r.ProcessTwilioStatus(context.Background(), "SMghost", "delivered", "")
	assert.Equal(t, 1, s.Skipped)
}

func TestProcessSendGridEventsEngagement(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "msgid-abc"))
	counters := newMemCounters()
	r := NewReconciler(store, counters, nil)

	s := r.ProcessSendGridEvents(context.Background(), []SendGridEvent{
		{Email: "sam@example.com", Event: "delivered", SGMessageID: "msgid-abc.recvd-xyz"},
		{Email: "sam@example.com", Event: "open", SGMessageID: "msgid-abc.recvd-xyz"},
		{Email: "sam@example.com", Event: "click", SGMessageID: "msgid-abc.recvd-xyz", URL: "https://example.com/sale"},
	})
	assert.Equal(t, 3, s.Applied)

	m, _ := store.FindByExternalID(context.Background(), "msgid-abc")
	assert.Equal(t, domain.MessageClicked, m.Status)
	assert.Equal(t, 1, counters.counts["c1/total_delivered"])
	assert.Equal(t, 1, counters.counts["c1/total_opened"])
	assert.Equal(t, 1, counters.counts["c1/total_clicked"])
}

func TestProcessSendGridEventsBounce(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "msgid-abc"))
	counters := newMemCounters()
	r := NewReconciler(store, counters, nil)

	s := r.ProcessSendGridEvents(context.Background(), []SendGridEvent{
		{Email: "sam@example.com", Event: "bounce", SGMessageID: "msgid-abc.x", Reason: "550 mailbox unavailable"},
	})
	require.Equal(t, 1, s.Applied)

	m, _ := store.FindByExternalID(context.Background(), "msgid-abc")
	assert.Equal(t, domain.MessageFailed, m.Status)
	assert.Equal(t, "bounce: 550 mailbox unavailable", m.ProviderStatus)
	assert.Equal(t, 1, counters.counts["c1/total_failed"])
}

func TestProcessSendGridUnsubscribeRecordsOptOut(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "msgid-abc"))
	optOuts := newMemOptOuts()
	r := NewReconciler(store, newMemCounters(), optOuts)

	s := r.ProcessSendGridEvents(context.Background(), []SendGridEvent{
		{Email: "sam@example.com", Event: "unsubscribe", SGMessageID: "msgid-abc.x"},
	})
	assert.Equal(t, 1, s.Applied)
	assert.Equal(t, "unsubscribe", optOuts.optOuts["sam@example.com"])

	m, _ := store.FindByExternalID(context.Background(), "msgid-abc")
	assert.Equal(t, domain.MessageDelivered, m.Status)
}

func TestProcessSendGridSpamReportRecordsOptOutEvenWhenUnmatched(t *testing.T) {
	optOuts := newMemOptOuts()
	r := NewReconciler(newMemStore(), newMemCounters(), optOuts)

	s := r.ProcessSendGridEvents(context.Background(), []SendGridEvent{
		{Email: "sam@example.com", Event: "spamreport", SGMessageID: "unknown.x"},
	})
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, "spamreport", optOuts.optOuts["sam@example.com"])
}

func TestProcessSendGridEventsMixedBatch(t *testing.T) {
	store := newMemStore(sentMessage("m1", "c1", "msgid-abc"))
	r := NewReconciler(store, newMemCounters(), nil)

	s := r.ProcessSendGridEvents(context.Background(), []SendGridEvent{
		{Event: "delivered", SGMessageID: "msgid-abc.x"},
		{Event: "group_resubscribe", SGMessageID: "msgid-abc.x"}, // unknown
		{Event: "delivered", SGMessageID: ""},                    // no id
	})
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 1, s.Applied)
	assert.Equal(t, 2, s.Skipped)
}
