package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://outreach.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "https://api.twilio.com", cfg.Twilio.BaseURL)
	assert.Equal(t, "https://api.sendgrid.com/v3", cfg.SendGrid.BaseURL)
	assert.Equal(t, 10, cfg.Dispatch.SMSRatePerSecond)
	assert.Equal(t, 100, cfg.Dispatch.EmailRatePerSecond)
	assert.Equal(t, time.Second, cfg.Dispatch.Interval())
	assert.Equal(t, 30*time.Second, cfg.Twilio.Timeout())
	assert.Equal(t, 10, cfg.Dispatch.RateFor("sms"))
	assert.Equal(t, 100, cfg.Dispatch.RateFor("email"))
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
twilio:
  account_sid: AC123
  auth_token: tok
  from_number: "+15550001111"
sendgrid:
  api_key: SG.abc
  from_email: news@example.com
  from_name: Example News
dispatch:
  sms_rate_per_second: 5
auth:
  cron_secret: shh
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Twilio.Configured())
	assert.True(t, cfg.SendGrid.Configured())
	assert.Equal(t, 5, cfg.Dispatch.SMSRatePerSecond)
	assert.Equal(t, 100, cfg.Dispatch.EmailRatePerSecond)
	assert.Equal(t, "shh", cfg.Auth.CronSecret)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
twilio:
  account_sid: from-file
`)

	t.Setenv("TWILIO_ACCOUNT_SID", "from-env")
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach_test")
	t.Setenv("SKIP_WEBHOOK_VERIFY", "true")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Twilio.AccountSID)
	assert.Equal(t, "postgres://localhost/outreach_test", cfg.Database.URL)
	assert.True(t, cfg.Twilio.SkipVerify)
	assert.True(t, cfg.SendGrid.SkipVerify)
}

func TestConfiguredRequiresAllFields(t *testing.T) {
	c := TwilioConfig{AccountSID: "AC123", AuthToken: "tok"}
	assert.False(t, c.Configured(), "missing from number")

	s := SendGridConfig{APIKey: "SG.abc"}
	assert.False(t, s.Configured(), "missing from email")
}
