// Package webhook verifies the authenticity of inbound gateway callbacks.
//
// Each gateway signs its webhook deliveries differently: the SMS gateway
// uses an HMAC-SHA1 over the request URL and sorted form parameters, the
// email gateway signs timestamp+body with an ECDSA P-256 key. Handlers must
// verify against the raw request before parsing anything.
package webhook

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// ErrInvalidSignature is returned when a webhook payload fails
// authenticity verification. The request body must not be processed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// TwilioVerifier validates X-Twilio-Signature headers on SMS status
// callbacks using the account auth token as the HMAC key.
type TwilioVerifier struct {
	authToken string
}

// NewTwilioVerifier creates a verifier for the given auth token.
func NewTwilioVerifier(authToken string) *TwilioVerifier {
	return &TwilioVerifier{authToken: authToken}
}

// Verify checks the signature over the full webhook URL plus all form
// parameters, sorted by key and concatenated as key+value with no
// separators, per the gateway's signing scheme.
func (v *TwilioVerifier) Verify(webhookURL string, params url.Values, signature string) bool {
	if v.authToken == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := webhookURL
	for _, k := range keys {
		payload += k + params.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(payload))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// SendGridVerifier validates the email gateway's event webhook signature:
// an ECDSA P-256/SHA-256 signature over timestamp+body, delivered base64
// encoded alongside the timestamp header.
type SendGridVerifier struct {
	publicKey *ecdsa.PublicKey
}

// NewSendGridVerifier creates a verifier from the base64-encoded DER public
// key published in the gateway's webhook settings.
func NewSendGridVerifier(publicKeyB64 string) (*SendGridVerifier, error) {
	pub, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return nil, err
	}
	return &SendGridVerifier{publicKey: pub}, nil
}

// ParsePublicKey decodes a base64 DER-encoded ECDSA public key.
func ParsePublicKey(publicKeyB64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not ECDSA", key)
	}
	return pub, nil
}

// Verify checks the ASN.1 signature over timestamp+rawBody.
func (v *SendGridVerifier) Verify(timestamp string, rawBody []byte, signatureB64 string) bool {
	if v.publicKey == nil || signatureB64 == "" || timestamp == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	payload := append([]byte(timestamp), rawBody...)
	digest := sha256.Sum256(payload)

	return ecdsa.VerifyASN1(v.publicKey, digest[:], sig)
}
