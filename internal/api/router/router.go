package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autoflowai/autoflow/internal/http/handlers"
	httpmiddleware "github.com/autoflowai/autoflow/internal/http/middleware"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	TwilioWebhooks     *handlers.TwilioWebhookHandler
	LeadWebhook        *handlers.LeadWebhookHandler
	Cron               *handlers.CronHandler
	AdminConversations *handlers.AdminConversationsHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CronSecret         string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.TwilioWebhooks != nil {
			public.Route("/webhooks/twilio", func(r chi.Router) {
				r.Post("/sms", cfg.TwilioWebhooks.HandleSMS)
				r.Post("/voice/status", cfg.TwilioWebhooks.HandleVoiceStatus)
				r.Post("/recording", cfg.TwilioWebhooks.HandleRecording)
			})
		}
		if cfg.LeadWebhook != nil {
			public.Post("/webhooks/lead", cfg.LeadWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Scheduler triggers, guarded by the shared cron secret.
	if cfg.Cron != nil {
		r.Route("/cron", func(cron chi.Router) {
			cron.Use(httpmiddleware.CronSecret(cfg.CronSecret))
			cron.Post("/reminders", cfg.Cron.RunReminders)
			cron.Get("/reminders", cfg.Cron.RunReminders)
			cron.Post("/follow-ups", cfg.Cron.RunFollowUps)
			cron.Get("/follow-ups", cfg.Cron.RunFollowUps)
		})
	}

	// Admin endpoints, guarded by the admin JWT.
	if cfg.AdminConversations != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/conversations/{conversationID}/reactivate", cfg.AdminConversations.Reactivate)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
