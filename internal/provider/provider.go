// Package provider contains the channel gateway send adapters.
//
// Each adapter sends a single message and returns a normalized Result or a
// typed error. Adapters validate addresses and payload limits before
// touching the network, treat missing credentials as a fatal configuration
// error, and surface any non-2xx gateway response as a *ProviderError
// carrying the gateway's own message. Calls are bounded by the configured
// client timeout and are never retried here.
package provider

import (
	"errors"
	"fmt"
	"regexp"
)

// Result is the normalized outcome of a successful gateway send.
type Result struct {
	// ExternalID is the gateway's identifier for the accepted message,
	// used later to correlate webhook events.
	ExternalID string `json:"external_id"`
	// ProviderStatus is the gateway's initial status word (e.g. "queued").
	ProviderStatus string `json:"provider_status"`
}

// Validation errors. These are never retried and surface to the caller as
// 400-class failures.
var (
	ErrInvalidPhone   = errors.New("recipient phone is not E.164")
	ErrMessageTooLong = errors.New("message body exceeds 1600 characters")
	ErrInvalidEmail   = errors.New("recipient email address is malformed")
	ErrSubjectTooLong = errors.New("subject exceeds 255 characters")
)

// ConfigError indicates missing gateway credentials. The adapter call is
// aborted entirely; nothing was sent.
type ConfigError struct {
	Provider string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s credentials not configured", e.Provider)
}

// ProviderError wraps a gateway rejection or transport failure. It is a
// terminal per-message failure.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// MaxSMSBodyLength is 10 segments at 160 characters each. Longer bodies are
// rejected pre-send instead of silently exploding into more segments.
const MaxSMSBodyLength = 1600

// MaxSubjectLength bounds email subjects.
const MaxSubjectLength = 255

var (
	phoneRegex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidPhone reports whether the address is a bare E.164 number.
func ValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// ValidEmail reports whether the address has a local part and a dotted
// domain. Full RFC 5322 validation is the gateway's job.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
