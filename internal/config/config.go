package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// BaseURL is the public URL of this service, used to build webhook
	// callback and unsubscribe links handed to the gateways.
	BaseURL string `yaml:"base_url"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection settings. Redis is optional: when
// URL is empty the service falls back to Postgres advisory locks and
// local-only rate accounting.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TwilioConfig holds the SMS gateway credentials and webhook settings.
type TwilioConfig struct {
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	FromNumber     string `yaml:"from_number"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// SkipVerify disables inbound webhook signature verification.
	// Never enable outside local development.
	SkipVerify bool `yaml:"skip_verify"`
}

// Timeout returns the configured timeout as a duration
func (c TwilioConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether the gateway credentials are present.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// SendGridConfig holds the email gateway credentials and webhook settings.
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	BaseURL   string `yaml:"base_url"`
	// WebhookPublicKey is the base64-encoded DER public key published in
	// the gateway's event webhook settings.
	WebhookPublicKey string `yaml:"webhook_public_key"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	SkipVerify       bool   `yaml:"skip_verify"`
}

// Timeout returns the configured timeout as a duration
func (c SendGridConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether the gateway credentials are present.
func (c SendGridConfig) Configured() bool {
	return c.APIKey != "" && c.FromEmail != ""
}

// DispatchConfig holds outbound throttling settings.
type DispatchConfig struct {
	// SMSRatePerSecond and EmailRatePerSecond bound how many messages are
	// in flight to each gateway per batch interval.
	SMSRatePerSecond     int `yaml:"sms_rate_per_second"`
	EmailRatePerSecond   int `yaml:"email_rate_per_second"`
	BatchIntervalSeconds int `yaml:"batch_interval_seconds"`
	// PollIntervalSeconds enables the in-process scheduler poller when
	// positive. Deployments driven by external cron leave it at 0.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// Interval returns the pause between dispatch batches.
func (c DispatchConfig) Interval() time.Duration {
	return time.Duration(c.BatchIntervalSeconds) * time.Second
}

// RateFor returns the per-second rate for a channel name.
func (c DispatchConfig) RateFor(channel string) int {
	if channel == "sms" {
		return c.SMSRatePerSecond
	}
	return c.EmailRatePerSecond
}

// AuthConfig holds the shared secrets for the trigger and internal send
// endpoints. Full identity management lives outside this service.
type AuthConfig struct {
	// APIToken authenticates internal callers via Authorization: Bearer.
	APIToken string `yaml:"api_token"`
	// CronSecret authenticates the scheduled trigger via X-Cron-Secret.
	CronSecret string `yaml:"cron_secret"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults and no credentials.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Twilio.BaseURL == "" {
		cfg.Twilio.BaseURL = "https://api.twilio.com"
	}
	if cfg.Twilio.TimeoutSeconds == 0 {
		cfg.Twilio.TimeoutSeconds = 30
	}
	if cfg.SendGrid.BaseURL == "" {
		cfg.SendGrid.BaseURL = "https://api.sendgrid.com/v3"
	}
	if cfg.SendGrid.TimeoutSeconds == 0 {
		cfg.SendGrid.TimeoutSeconds = 30
	}
	if cfg.Dispatch.SMSRatePerSecond == 0 {
		cfg.Dispatch.SMSRatePerSecond = 10
	}
	if cfg.Dispatch.EmailRatePerSecond == 0 {
		cfg.Dispatch.EmailRatePerSecond = 100
	}
	if cfg.Dispatch.BatchIntervalSeconds == 0 {
		cfg.Dispatch.BatchIntervalSeconds = 1
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SERVER_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGrid.APIKey = v
	}
	if v := os.Getenv("SENDGRID_FROM_EMAIL"); v != "" {
		cfg.SendGrid.FromEmail = v
	}
	if v := os.Getenv("SENDGRID_FROM_NAME"); v != "" {
		cfg.SendGrid.FromName = v
	}
	if v := os.Getenv("SENDGRID_WEBHOOK_PUBLIC_KEY"); v != "" {
		cfg.SendGrid.WebhookPublicKey = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Auth.APIToken = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Auth.CronSecret = v
	}
	if v := os.Getenv("SCHEDULER_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("SKIP_WEBHOOK_VERIFY"); v != "" {
		skip, _ := strconv.ParseBool(v)
		cfg.Twilio.SkipVerify = skip
		cfg.SendGrid.SkipVerify = skip
	}

	return cfg, nil
}
