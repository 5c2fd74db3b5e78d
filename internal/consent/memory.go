package consent

import (
	"context"
	"strings"
	"sync"
)

// MemberConsent holds the stored flags for one member.
type MemberConsent struct {
	SMSGranted        bool
	SMSOptedOut       bool
	EmailGranted      bool
	EmailUnsubscribed bool
	Email             string
}

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]MemberConsent
	optOuts map[string]string // email -> reason
}

// NewMemoryStore creates an empty in-memory consent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[string]MemberConsent),
		optOuts: make(map[string]string),
	}
}

// Set stores the consent flags for a member.
func (s *MemoryStore) Set(memberID string, c MemberConsent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberID] = c
}

func (s *MemoryStore) SMSConsent(_ context.Context, memberID string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.members[memberID]
	return c.SMSGranted, c.SMSOptedOut, nil
}

func (s *MemoryStore) EmailConsent(_ context.Context, memberID string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.members[memberID]
	if reason, ok := s.optOuts[strings.ToLower(c.Email)]; ok && reason != "" {
		return c.EmailGranted, true, nil
	}
	return c.EmailGranted, c.EmailUnsubscribed, nil
}

func (s *MemoryStore) RecordEmailOptOut(_ context.Context, email, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optOuts[strings.ToLower(email)] = reason
	return nil
}

// OptOutReason returns the recorded opt-out reason for an email, if any.
func (s *MemoryStore) OptOutReason(email string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reason, ok := s.optOuts[strings.ToLower(email)]
	return reason, ok
}
