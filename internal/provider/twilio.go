package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/outreach/internal/config"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewTwilioClient builds a client from config. Credentials are checked at
// send time so a partially configured deployment can still boot.
func NewTwilioClient(cfg config.TwilioConfig) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

// Send submits one SMS. statusCallback, when non-empty, is the URL Twilio
// will POST delivery status events to.
func (c *TwilioClient) Send(ctx context.Context, to, body, statusCallback string) (*Result, error) {
	if c.accountSID == "" || c.authToken == "" || c.fromNumber == "" {
		return nil, &ConfigError{Provider: "twilio"}
	}
	if !ValidPhone(to) {
		return nil, ErrInvalidPhone
	}
	if len(body) > MaxSMSBodyLength {
		return nil, ErrMessageTooLong
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)
	if statusCallback != "" {
		form.Set("StatusCallback", statusCallback)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "twilio", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed twilioMessageResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, &ProviderError{Provider: "twilio", StatusCode: resp.StatusCode, Message: msg}
	}

	status := parsed.Status
	if status == "" {
		status = "queued"
	}
	return &Result{ExternalID: parsed.SID, ProviderStatus: status}, nil
}
