package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/scheduler"
)

type triggerRequest struct {
	CampaignID string `json:"campaignId"`
}

type triggerResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Results []triggerResultRow `json:"results"`
}

type triggerResultRow struct {
	CampaignID      string            `json:"campaignId"`
	Name            string            `json:"name"`
	Status          string            `json:"status,omitempty"`
	Skipped         string            `json:"skipped,omitempty"`
	TotalRecipients int               `json:"totalRecipients"`
	MessagesCreated int               `json:"messagesCreated"`
	MessagesSent    int               `json:"messagesSent"`
	MessagesFailed  int               `json:"messagesFailed"`
	Errors          map[string]string `json:"errors,omitempty"`
}

// TriggerCampaigns handles POST /api/campaigns/trigger. Accepts either the
// cron secret header or a bearer token; an optional body scopes the run to
// one campaign.
func (h *Handlers) TriggerCampaigns(w http.ResponseWriter, r *http.Request) {
	if !h.cronOK(r) && !h.bearerOK(r) {
		httputil.Unauthorized(w)
		return
	}

	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		// A malformed body is ignored rather than rejected; cron payloads
		// are frequently empty or junk.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	report, err := h.trigger.TriggerDue(r.Context(), req.CampaignID)
	if err != nil {
		log.Printf("[API] Trigger failed: %v", err)
		httputil.ErrorCode(w, http.StatusInternalServerError, CodeInternalError, "trigger failed")
		return
	}

	httputil.OK(w, buildTriggerResponse(report))
}

func buildTriggerResponse(report *scheduler.Report) triggerResponse {
	resp := triggerResponse{Success: true}
	if report.Triggered == 0 {
		resp.Message = "no campaigns due"
	} else {
		resp.Message = "campaigns processed"
	}

	for _, out := range report.Campaigns {
		row := triggerResultRow{
			CampaignID: out.CampaignID,
			Name:       out.Name,
			Status:     out.Status,
			Skipped:    out.Skipped,
		}
		if out.Result != nil {
			row.TotalRecipients = out.Result.TotalRecipients
			row.MessagesCreated = out.Result.Created
			row.MessagesSent = out.Result.Sent
			row.MessagesFailed = out.Result.Failed
			row.Errors = out.Result.Errors
		}
		resp.Results = append(resp.Results, row)
	}
	return resp
}
