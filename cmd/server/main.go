package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/api"
	"github.com/ignite/outreach/internal/audit"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/consent"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/provider"
	"github.com/ignite/outreach/internal/ratelimit"
	"github.com/ignite/outreach/internal/repository/postgres"
	"github.com/ignite/outreach/internal/scheduler"
	"github.com/ignite/outreach/internal/webhook"
)

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Printf("[Server] No config file, using defaults and environment: %v", err)
		cfg = config.Default()
	}
	if cfg.Database.URL == "" {
		log.Fatal("[Server] DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Server] Open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("[Server] Database ping failed (host %s): %v", extractHost(cfg.Database.URL), err)
	}
	log.Printf("[Server] Connected to Postgres at %s", extractHost(cfg.Database.URL))

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("[Server] Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("[Server] Redis unavailable, continuing without shared rate limiting: %v", err)
			redisClient = nil
		} else {
			log.Printf("[Server] Connected to Redis")
		}
	}

	campaignRepo := postgres.NewCampaignRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	memberRepo := postgres.NewMemberRepo(db)
	auditor := audit.NewPostgresAppender(db)
	gate := consent.NewGate(consent.NewPostgresStore(db))

	rates := map[domain.Channel]int{
		domain.ChannelSMS:   cfg.Dispatch.RateFor(string(domain.ChannelSMS)),
		domain.ChannelEmail: cfg.Dispatch.RateFor(string(domain.ChannelEmail)),
	}

	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewLimiter(redisClient, rates)
	}

	twilioClient := provider.NewTwilioClient(cfg.Twilio)
	sendgridClient := provider.NewSendGridClient(cfg.SendGrid)
	if !cfg.Twilio.Configured() {
		log.Printf("[Server] Twilio not configured; SMS sends will fail")
	}
	if !cfg.SendGrid.Configured() {
		log.Printf("[Server] SendGrid not configured; email sends will fail")
	}

	// The limiter interface is satisfied by *ratelimit.Limiter, but a nil
	// typed pointer must not reach the dispatcher as a non-nil interface.
	var dispatchLimiter dispatch.RateLimiter
	if limiter != nil {
		dispatchLimiter = limiter
	}

	dispatcher := dispatch.NewDispatcher(campaignRepo, messageRepo, memberRepo, gate,
		twilioClient, sendgridClient, dispatchLimiter, dispatch.Options{
			Rates:         rates,
			BatchInterval: cfg.Dispatch.Interval(),
			BaseURL:       cfg.Server.BaseURL,
		})

	sched := scheduler.New(campaignRepo, dispatcher, auditor, redisClient, db)

	if cfg.Dispatch.PollIntervalSeconds > 0 {
		poller := scheduler.NewPoller(sched, time.Duration(cfg.Dispatch.PollIntervalSeconds)*time.Second)
		if err := poller.Start(); err != nil {
			log.Fatalf("[Server] Start poller: %v", err)
		}
		defer poller.Stop()
	}

	var sgVerifier *webhook.SendGridVerifier
	if cfg.SendGrid.WebhookPublicKey != "" {
		sgVerifier, err = webhook.NewSendGridVerifier(cfg.SendGrid.WebhookPublicKey)
		if err != nil {
			log.Fatalf("[Server] Bad SendGrid webhook public key: %v", err)
		}
	}

	reconciler := webhook.NewReconciler(messageRepo, campaignRepo, gate)

	var rateGate api.RateGate
	if limiter != nil {
		rateGate = limiter
	}
	handlers := api.NewHandlers(cfg, sched, campaignRepo, messageRepo,
		reconciler, sgVerifier, gate, twilioClient, sendgridClient, rateGate, auditor)
	server := api.NewServer(cfg.Server, handlers)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("[Server] HTTP server: %v", err)
	case sig := <-sigCh:
		log.Printf("[Server] Received %v, shutting down", sig)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown: %v", err)
	}
}
