package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/ignite/outreach/internal/webhook"
)

// maxWebhookBody bounds how much gateway payload we read.
const maxWebhookBody = 1 << 20

// TwilioWebhook handles POST /webhooks/twilio. Twilio retries on any
// non-2xx, so after the signature check every outcome is a 200: an event we
// cannot process now will not become processable on redelivery.
func (h *Handlers) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		log.Printf("[API] Twilio webhook bad form: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.cfg.Twilio.SkipVerify {
		url := h.cfg.Server.BaseURL + r.URL.RequestURI()
		if !h.twilioSig.Verify(url, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	errorCode := r.PostForm.Get("ErrorCode")
	if sid == "" || status == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	s := h.reconciler.ProcessTwilioStatus(r.Context(), sid, status, errorCode)
	if s.Applied > 0 {
		log.Printf("[API] Twilio webhook: %s -> %s", sid, status)
	}
	w.WriteHeader(http.StatusOK)
}

// SendGridWebhook handles POST /webhooks/sendgrid. The raw body must be
// read before parsing: the ECDSA signature covers the exact bytes sent.
func (h *Handlers) SendGridWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("[API] SendGrid webhook body read: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.cfg.SendGrid.SkipVerify {
		if h.sgSig == nil {
			log.Printf("[API] SendGrid webhook rejected: no public key configured")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		timestamp := r.Header.Get("X-Twilio-Email-Event-Webhook-Timestamp")
		signature := r.Header.Get("X-Twilio-Email-Event-Webhook-Signature")
		if !h.sgSig.Verify(timestamp, body, signature) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	var events []webhook.SendGridEvent
	if err := json.Unmarshal(body, &events); err != nil {
		log.Printf("[API] SendGrid webhook bad payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	s := h.reconciler.ProcessSendGridEvents(r.Context(), events)
	log.Printf("[API] SendGrid webhook: %d events, %d applied, %d skipped", s.Processed, s.Applied, s.Skipped)
	w.WriteHeader(http.StatusOK)
}
