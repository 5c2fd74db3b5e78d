package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/config"
)

const sendgridDefaultBaseURL = "https://api.sendgrid.com/v3"

// SendGridClient sends email through the SendGrid v3 Mail Send API.
type SendGridClient struct {
	apiKey     string
	fromEmail  string
	fromName   string
	baseURL    string
	httpClient *http.Client
}

// EmailMessage is one outbound email. HTMLBody may be empty, in which case
// only a text part is sent.
type EmailMessage struct {
	To             string
	Subject        string
	TextBody       string
	HTMLBody       string
	UnsubscribeURL string
	CustomArgs     map[string]string
}

// NewSendGridClient builds a client from config.
func NewSendGridClient(cfg config.SendGridConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendgridDefaultBaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SendGridClient{
		apiKey:     cfg.APIKey,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send delivers a single email. Click and open tracking are always enabled
// so engagement events flow back through the event webhook.
func (c *SendGridClient) Send(ctx context.Context, msg *EmailMessage) (*Result, error) {
	if c.apiKey == "" || c.fromEmail == "" {
		return nil, &ConfigError{Provider: "sendgrid"}
	}
	if !ValidEmail(msg.To) {
		return nil, ErrInvalidEmail
	}
	if len(msg.Subject) > MaxSubjectLength {
		return nil, ErrSubjectTooLong
	}

	personalization := map[string]interface{}{
		"to": []map[string]string{{"email": msg.To}},
	}
	if len(msg.CustomArgs) > 0 {
		personalization["custom_args"] = msg.CustomArgs
	}

	content := []map[string]string{{"type": "text/plain", "value": msg.TextBody}}
	if msg.HTMLBody != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTMLBody})
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{personalization},
		"from":             map[string]string{"email": c.fromEmail, "name": c.fromName},
		"subject":          msg.Subject,
		"content":          content,
		"tracking_settings": map[string]interface{}{
			"click_tracking": map[string]bool{"enable": true},
			"open_tracking":  map[string]bool{"enable": true},
		},
	}
	if msg.UnsubscribeURL != "" {
		payload["headers"] = map[string]string{
			"List-Unsubscribe":      fmt.Sprintf("<%s>", msg.UnsubscribeURL),
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("building sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "sendgrid", Message: err.Error()}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Provider: "sendgrid", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	// SendGrid accepts asynchronously; the only send-time identifier is the
	// X-Message-Id header. Webhook events carry it as the prefix of
	// sg_message_id.
	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}
	return &Result{ExternalID: messageID, ProviderStatus: "accepted"}, nil
}
