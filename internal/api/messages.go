package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/ignite/outreach/internal/audit"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/provider"
)

type sendSMSRequest struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Body      string `json:"body"`
	MemberID  string `json:"memberId"`
	Timezone  string `json:"timezone"`
}

type sendEmailRequest struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	HTML      string `json:"html"`
	MemberID  string `json:"memberId"`
}

type sendResponse struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"messageId,omitempty"`
	ExternalID string `json:"externalId"`
	Status     string `json:"status"`
}

// SendSMS handles POST /api/messages/sms, a direct single send outside any
// campaign run.
func (h *Handlers) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req sendSMSRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if !provider.ValidPhone(req.To) {
		httputil.ErrorCode(w, http.StatusBadRequest, CodeInvalidPhone, "recipient phone must be E.164")
		return
	}
	if len(req.Body) > provider.MaxSMSBodyLength {
		httputil.ErrorCode(w, http.StatusBadRequest, CodeMessageTooLong, "message body exceeds 1600 characters")
		return
	}

	if req.MemberID != "" && h.gate != nil {
		decision, err := h.gate.CanSendSMS(r.Context(), req.MemberID, req.Timezone)
		if err != nil {
			httputil.ErrorCode(w, http.StatusInternalServerError, CodeConsentCheckFailed, "consent check failed")
			return
		}
		if !decision.CanSend {
			h.failMessage(r.Context(), req.MessageID, decision.Reason)
			httputil.ErrorCode(w, http.StatusForbidden, CodeConsentDenied, decision.Reason)
			return
		}
	}

	if !h.allowRate(w, r.Context(), domain.ChannelSMS) {
		return
	}

	res, err := h.sms.Send(r.Context(), req.To, req.Body, h.cfg.Server.BaseURL+"/webhooks/twilio/status")
	if err != nil {
		h.failMessage(r.Context(), req.MessageID, err.Error())
		writeSendError(w, err, CodeTwilioError)
		return
	}

	h.completeSend(r.Context(), req.MessageID, res, "sms sent to", req.To)
	httputil.OK(w, sendResponse{Success: true, MessageID: req.MessageID, ExternalID: res.ExternalID, Status: res.ProviderStatus})
}

// SendEmail handles POST /api/messages/email.
func (h *Handlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if !provider.ValidEmail(req.To) {
		httputil.ErrorCode(w, http.StatusBadRequest, CodeInvalidEmail, "recipient email is malformed")
		return
	}
	if len(req.Subject) > provider.MaxSubjectLength {
		httputil.ErrorCode(w, http.StatusBadRequest, CodeSubjectTooLong, "subject exceeds 255 characters")
		return
	}

	if req.MemberID != "" && h.gate != nil {
		decision, err := h.gate.CanSendEmail(r.Context(), req.MemberID)
		if err != nil {
			httputil.ErrorCode(w, http.StatusInternalServerError, CodeConsentCheckFailed, "consent check failed")
			return
		}
		if !decision.CanSend {
			h.failMessage(r.Context(), req.MessageID, decision.Reason)
			httputil.ErrorCode(w, http.StatusForbidden, CodeConsentDenied, decision.Reason)
			return
		}
	}

	if !h.allowRate(w, r.Context(), domain.ChannelEmail) {
		return
	}

	res, err := h.email.Send(r.Context(), &provider.EmailMessage{
		To:             req.To,
		Subject:        req.Subject,
		TextBody:       req.Body,
		HTMLBody:       req.HTML,
		UnsubscribeURL: h.cfg.Server.BaseURL + "/unsubscribe?mid=" + req.MessageID,
	})
	if err != nil {
		h.failMessage(r.Context(), req.MessageID, err.Error())
		writeSendError(w, err, CodeSendGridError)
		return
	}

	h.completeSend(r.Context(), req.MessageID, res, "email sent to", req.To)
	httputil.OK(w, sendResponse{Success: true, MessageID: req.MessageID, ExternalID: res.ExternalID, Status: res.ProviderStatus})
}

// allowRate runs the non-blocking rate check, writing the 429 itself.
func (h *Handlers) allowRate(w http.ResponseWriter, ctx context.Context, ch domain.Channel) bool {
	if h.rates == nil {
		return true
	}
	allowed, err := h.rates.Allow(ctx, ch)
	if err != nil {
		// A broken limiter backend should not block sends.
		log.Printf("[API] Rate check failed: %v", err)
		return true
	}
	if !allowed {
		httputil.ErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, "send rate exceeded, retry shortly")
		return false
	}
	return true
}

func (h *Handlers) completeSend(ctx context.Context, messageID string, res *provider.Result, action, address string) {
	if messageID != "" {
		if err := h.messages.MarkSent(ctx, messageID, res.ExternalID, res.ProviderStatus); err != nil {
			log.Printf("[API] Mark sent %s: %v", messageID, err)
		}
	}
	h.audit(ctx, audit.Event{Type: "message_sent", Detail: audit.MaskedDetail(action, address)})
}

func (h *Handlers) failMessage(ctx context.Context, messageID, reason string) {
	if messageID == "" {
		return
	}
	if err := h.messages.MarkFailed(ctx, messageID, reason); err != nil {
		log.Printf("[API] Mark failed %s: %v", messageID, err)
	}
}

// writeSendError maps adapter errors onto the response taxonomy.
func writeSendError(w http.ResponseWriter, err error, gatewayCode string) {
	var cfgErr *provider.ConfigError
	var provErr *provider.ProviderError
	switch {
	case errors.Is(err, provider.ErrInvalidPhone):
		httputil.ErrorCode(w, http.StatusBadRequest, CodeInvalidPhone, err.Error())
	case errors.Is(err, provider.ErrMessageTooLong):
		httputil.ErrorCode(w, http.StatusBadRequest, CodeMessageTooLong, err.Error())
	case errors.Is(err, provider.ErrInvalidEmail):
		httputil.ErrorCode(w, http.StatusBadRequest, CodeInvalidEmail, err.Error())
	case errors.Is(err, provider.ErrSubjectTooLong):
		httputil.ErrorCode(w, http.StatusBadRequest, CodeSubjectTooLong, err.Error())
	case errors.As(err, &cfgErr):
		httputil.ErrorCode(w, http.StatusInternalServerError, CodeInternalError, cfgErr.Error())
	case errors.As(err, &provErr):
		log.Printf("[API] Gateway error: %v", provErr)
		httputil.ErrorCode(w, http.StatusBadGateway, gatewayCode, provErr.Message)
	default:
		log.Printf("[API] Send error: %v", err)
		httputil.ErrorCode(w, http.StatusInternalServerError, CodeInternalError, "send failed")
	}
}
