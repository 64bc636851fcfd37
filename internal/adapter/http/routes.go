package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Fanout/internal/domain/webhook"
	"github.com/Strob0t/Fanout/internal/middleware"
)

// MountRoutes registers the admin API under /api/v1 and the health check.
// Every /api/v1 route requires the admin bearer token.
func MountRoutes(r chi.Router, h *Handlers, adminToken string, limiter *middleware.RateLimiter) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AdminToken(adminToken))
		if limiter != nil {
			r.Use(limiter.Handler)
		}

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "1"})
		})

		r.Get("/webhooks", h.ListWebhooks)
		r.Post("/webhooks", h.CreateWebhook)
		r.Get("/webhooks/{id}", h.GetWebhook)
		r.Patch("/webhooks/{id}", h.UpdateWebhook)
		r.Delete("/webhooks/{id}", h.DeleteWebhook)

		r.Post("/events", h.PublishEvent)
	})
}

// MountIngest registers POST /hooks/events for producers that sign event
// bodies with the shared ingest secret instead of holding the admin token.
func MountIngest(r chi.Router, h *Handlers, secret string, limiter *middleware.RateLimiter) {
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Use(middleware.WebhookHMAC(secret, webhook.HeaderSignature))
		r.Post("/hooks/events", h.PublishEvent)
	})
}
