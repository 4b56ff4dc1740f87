// Package router wires the HTTP surface of the clinic platform.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opdstack/clinic-platform/internal/attachments"
	"github.com/opdstack/clinic-platform/internal/availability"
	"github.com/opdstack/clinic-platform/internal/billing"
	"github.com/opdstack/clinic-platform/internal/clinicians"
	"github.com/opdstack/clinic-platform/internal/consultations"
	httpmiddleware "github.com/opdstack/clinic-platform/internal/http/middleware"
	"github.com/opdstack/clinic-platform/internal/patients"
	"github.com/opdstack/clinic-platform/internal/realtime"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	PatientsHandler      *patients.Handler
	AttachmentsHandler   *attachments.Handler
	ConsultationsHandler *consultations.Handler
	BillingHandler       *billing.Handler
	AvailabilityHandler  *availability.Handler
	CliniciansHandler    *clinicians.Handler
	RealtimeHandler      *realtime.Handler
	MetricsHandler       http.Handler

	SessionJWTSecret   string
	CORSAllowedOrigins []string

	// RateLimitPerSecond of 0 disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
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
	r.Use(httpmiddleware.RoleSession(cfg.SessionJWTSecret))
	// After RoleSession so the limiter can key on the session actor.
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.RealtimeHandler != nil {
		r.Get("/ws", cfg.RealtimeHandler.Connect)
	}

	if cfg.PatientsHandler != nil {
		r.Route("/patients", func(r chi.Router) {
			r.Post("/", cfg.PatientsHandler.Register)
			r.Get("/", cfg.PatientsHandler.Search)
		})
	}

	if cfg.ConsultationsHandler != nil {
		r.Route("/consultations", func(r chi.Router) {
			r.Post("/", cfg.ConsultationsHandler.Create)
			r.Get("/", cfg.ConsultationsHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.ConsultationsHandler.Get)
				r.Get("/history", cfg.ConsultationsHandler.History)
				r.Put("/draft", cfg.ConsultationsHandler.SaveDraft)
				r.Put("/finalize", cfg.ConsultationsHandler.Finalize)
				r.Put("/billing", cfg.ConsultationsHandler.UpdateBilling)
				r.Put("/vitals", cfg.ConsultationsHandler.UpdateVitals)
				r.Put("/logistics", cfg.ConsultationsHandler.UpdateLogistics)
			})
		})
	}

	if cfg.AttachmentsHandler != nil {
		r.Post("/attachments", cfg.AttachmentsHandler.Upload)
	}

	if cfg.BillingHandler != nil {
		r.Get("/billing/rollup", cfg.BillingHandler.Rollup)
	}

	if cfg.AvailabilityHandler != nil {
		r.Route("/availability", func(r chi.Router) {
			r.Get("/{clinicianID}", cfg.AvailabilityHandler.Get)
			r.Get("/{clinicianID}/{weekday}", cfg.AvailabilityHandler.GetDay)
			r.Put("/{clinicianID}", cfg.AvailabilityHandler.Put)
		})
	}

	if cfg.CliniciansHandler != nil {
		r.Route("/clinicians", func(r chi.Router) {
			r.Get("/", cfg.CliniciansHandler.List)
			r.Get("/{id}", cfg.CliniciansHandler.Get)
			r.Put("/", cfg.CliniciansHandler.Upsert)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
