package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
)

type createCampaignRequest struct {
	Name         string     `json:"name"`
	Channel      string     `json:"channel"`
	Subject      string     `json:"subject"`
	BodyTemplate string     `json:"bodyTemplate"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
	Audience     string     `json:"audienceFilter"`
}

// CreateCampaign handles POST /api/campaigns. A campaign with a scheduled
// time goes straight to scheduled; otherwise it stays in draft.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	ch := domain.Channel(req.Channel)
	if !ch.Valid() {
		httputil.BadRequest(w, "channel must be sms or email")
		return
	}
	if req.Name == "" || req.BodyTemplate == "" {
		httputil.BadRequest(w, "name and bodyTemplate are required")
		return
	}
	if ch == domain.ChannelEmail && req.Subject == "" {
		httputil.BadRequest(w, "subject is required for email campaigns")
		return
	}
	if err := dispatch.NewRenderer().Parse(req.BodyTemplate); err != nil {
		httputil.BadRequest(w, "bodyTemplate is not a valid template: "+err.Error())
		return
	}

	c := &domain.Campaign{
		Name:           req.Name,
		Channel:        ch,
		Subject:        req.Subject,
		BodyTemplate:   req.BodyTemplate,
		AudienceFilter: req.Audience,
		Status:         domain.CampaignStatusDraft,
	}
	if req.ScheduledAt != nil {
		c.Status = domain.CampaignStatusScheduled
		c.ScheduledAt = *req.ScheduledAt
	}

	id, err := h.campaigns.Create(r.Context(), c)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	c.ID = id
	httputil.Created(w, c)
}

// GetCampaign handles GET /api/campaigns/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, dispatch.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CancelCampaign handles POST /api/campaigns/{id}/cancel. Only draft and
// scheduled campaigns can be cancelled; anything later is already sending
// or finished.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.campaigns.Get(r.Context(), id)
	if errors.Is(err, dispatch.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !c.Cancellable() {
		httputil.Error(w, http.StatusConflict, "campaign cannot be cancelled in its current status")
		return
	}

	// The conditional UPDATE re-checks the status, so a trigger racing this
	// cancel still wins cleanly.
	cancelled, err := h.campaigns.Cancel(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !cancelled {
		httputil.Error(w, http.StatusConflict, "campaign cannot be cancelled in its current status")
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "campaignId": id})
}

// ListCampaignMessages handles GET /api/campaigns/{id}/messages.
func (h *Handlers) ListCampaignMessages(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.MessageStatus
	if s := r.URL.Query().Get("status"); s != "" {
		statuses = append(statuses, domain.MessageStatus(s))
	}
	msgs, err := h.messages.ListByCampaign(r.Context(), chi.URLParam(r, "id"), statuses, 100, 0)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"messages": msgs, "count": len(msgs)})
}
