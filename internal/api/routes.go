package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. Webhooks and health are public; the
// webhook endpoints authenticate with signatures, not tokens. Everything
// under /api except the trigger requires the bearer token; the trigger does
// its own dual-credential check.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Cron-Secret"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	// Gateway callbacks. HandleFunc (not Post) so the handlers can answer
	// 405 themselves the way the gateways expect.
	r.HandleFunc("/webhooks/twilio", h.TwilioWebhook)
	r.HandleFunc("/webhooks/twilio/status", h.TwilioWebhook)
	r.HandleFunc("/webhooks/sendgrid", h.SendGridWebhook)

	r.Route("/api", func(api chi.Router) {
		api.Post("/campaigns/trigger", h.TriggerCampaigns)

		api.Group(func(protected chi.Router) {
			protected.Use(h.RequireBearer)
			protected.Post("/campaigns", h.CreateCampaign)
			protected.Get("/campaigns/{id}", h.GetCampaign)
			protected.Post("/campaigns/{id}/cancel", h.CancelCampaign)
			protected.Get("/campaigns/{id}/messages", h.ListCampaignMessages)
			protected.Post("/messages/sms", h.SendSMS)
			protected.Post("/messages/email", h.SendEmail)
		})
	})

	return r
}
