package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach/internal/config"
)

func TestValidPhone(t *testing.T) {
	cases := []struct {
		phone string
		ok    bool
	}{
		{"+14155551234", true},
		{"+442071838750", true},
		{"14155551234", false},
		{"+1-415-555-1234", false},
		{"+04155551234", false},
		{"", false},
		{"+1234567890123456", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, ValidPhone(tc.phone), tc.phone)
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("sam@example.com"))
	assert.True(t, ValidEmail("sam+tag@mail.example.co"))
	assert.False(t, ValidEmail("sam@localhost"))
	assert.False(t, ValidEmail("not-an-email"))
	assert.False(t, ValidEmail("two@@example.com"))
	assert.False(t, ValidEmail(""))
}

func newTwilioTestClient(server *httptest.Server) *TwilioClient {
	return NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15550001111",
		BaseURL:    server.URL,
	})
}

func TestTwilioSend(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)

		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":             r.PostForm.Get("To"),
			"From":           r.PostForm.Get("From"),
			"Body":           r.PostForm.Get("Body"),
			"StatusCallback": r.PostForm.Get("StatusCallback"),
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM1234", "status": "queued"})
	}))
	defer server.Close()

	client := newTwilioTestClient(server)
	res, err := client.Send(context.Background(), "+14155551234", "hello", "https://app.example.com/webhooks/twilio/status")
	require.NoError(t, err)
	assert.Equal(t, "SM1234", res.ExternalID)
	assert.Equal(t, "queued", res.ProviderStatus)
	assert.Equal(t, "+14155551234", gotForm["To"])
	assert.Equal(t, "+15550001111", gotForm["From"])
	assert.Equal(t, "hello", gotForm["Body"])
	assert.Equal(t, "https://app.example.com/webhooks/twilio/status", gotForm["StatusCallback"])
}

func TestTwilioSendValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for invalid input")
	}))
	defer server.Close()
	client := newTwilioTestClient(server)

	_, err := client.Send(context.Background(), "415-555-1234", "hello", "")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = client.Send(context.Background(), "+14155551234", strings.Repeat("x", MaxSMSBodyLength+1), "")
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestTwilioSendNotConfigured(t *testing.T) {
	client := NewTwilioClient(config.TwilioConfig{})
	_, err := client.Send(context.Background(), "+14155551234", "hello", "")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "twilio", cfgErr.Provider)
}

func TestTwilioSendGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 21211, "message": "Invalid 'To' Phone Number"})
	}))
	defer server.Close()

	client := newTwilioTestClient(server)
	_, err := client.Send(context.Background(), "+14155551234", "hello", "")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "twilio", provErr.Provider)
	assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "Invalid 'To' Phone Number")
}

func newSendGridTestClient(server *httptest.Server) *SendGridClient {
	return NewSendGridClient(config.SendGridConfig{
		APIKey:    "SG.key",
		FromEmail: "news@example.com",
		FromName:  "Example News",
		BaseURL:   server.URL,
	})
}

func TestSendGridSend(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("X-Message-Id", "msgid-abc")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newSendGridTestClient(server)
	res, err := client.Send(context.Background(), &EmailMessage{
		To:             "sam@example.com",
		Subject:        "August update",
		TextBody:       "Hi Sam",
		HTMLBody:       "<p>Hi Sam</p>",
		UnsubscribeURL: "https://app.example.com/unsubscribe?m=1",
		CustomArgs:     map[string]string{"campaign_id": "c1", "message_id": "m1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msgid-abc", res.ExternalID)
	assert.Equal(t, "accepted", res.ProviderStatus)

	from := gotPayload["from"].(map[string]interface{})
	assert.Equal(t, "news@example.com", from["email"])
	assert.Equal(t, "August update", gotPayload["subject"])

	content := gotPayload["content"].([]interface{})
	require.Len(t, content, 2)
	assert.Equal(t, "text/plain", content[0].(map[string]interface{})["type"])
	assert.Equal(t, "text/html", content[1].(map[string]interface{})["type"])

	headers := gotPayload["headers"].(map[string]interface{})
	assert.Equal(t, "<https://app.example.com/unsubscribe?m=1>", headers["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", headers["List-Unsubscribe-Post"])

	tracking := gotPayload["tracking_settings"].(map[string]interface{})
	assert.True(t, tracking["click_tracking"].(map[string]interface{})["enable"].(bool))
	assert.True(t, tracking["open_tracking"].(map[string]interface{})["enable"].(bool))
}

func TestSendGridSendValidation(t *testing.T) {
	client := newSendGridTestClient(httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for invalid input")
	})))

	_, err := client.Send(context.Background(), &EmailMessage{To: "nope", Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = client.Send(context.Background(), &EmailMessage{To: "sam@example.com", Subject: strings.Repeat("s", MaxSubjectLength+1)})
	assert.ErrorIs(t, err, ErrSubjectTooLong)
}

func TestSendGridSendNotConfigured(t *testing.T) {
	client := NewSendGridClient(config.SendGridConfig{})
	_, err := client.Send(context.Background(), &EmailMessage{To: "sam@example.com", Subject: "x"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sendgrid", cfgErr.Provider)
}

func TestSendGridSendGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"The provided authorization grant is invalid"}]}`))
	}))
	defer server.Close()

	client := newSendGridTestClient(server)
	_, err := client.Send(context.Background(), &EmailMessage{To: "sam@example.com", Subject: "x", TextBody: "hi"})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "sendgrid", provErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
}

func TestSendGridFallbackMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newSendGridTestClient(server)
	res, err := client.Send(context.Background(), &EmailMessage{To: "sam@example.com", Subject: "x", TextBody: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ExternalID)
}
