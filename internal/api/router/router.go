package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-whatsapp-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WhatsApp       *whatsapp.Adapter
	AdminMessaging *handlers.AdminMessagingHandler
	// AdminAuthSecret signs admin JWTs; admin routes are not mounted without it.
	AdminAuthSecret  string
	AdminRateLimiter *httpmiddleware.RateLimiter
	MetricsHandler   http.Handler
	Components       map[string]bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhook, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health(cfg.Components))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Get("/webhook", cfg.WhatsApp.HandleVerification)
			public.Post("/webhook", cfg.WhatsApp.HandleWebhook)
		}
	})

	if cfg.AdminMessaging != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			if cfg.AdminRateLimiter != nil {
				admin.Use(httpmiddleware.RateLimit(cfg.AdminRateLimiter))
			}
			admin.Post("/messages:send", cfg.AdminMessaging.SendMessage)
			admin.Post("/phones:normalize", cfg.AdminMessaging.NormalizePhone)
		})
	}

	return r
}
