package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/previsit/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/previsit/internal/http/middleware"
	"github.com/wolfman30/previsit/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Session            *handlers.SessionHandler
	Note               *handlers.NoteHandler
	Stream             *handlers.StreamHub
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimiter guards the routes that call the scheduling backend (optional).
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	limited := func(r chi.Router) chi.Router {
		if cfg.RateLimiter == nil {
			return r
		}
		return r.With(cfg.RateLimiter.Handler)
	}

	if s := cfg.Session; s != nil {
		limited(r).Get("/patients", s.SearchPatients)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Put("/patient", s.SelectPatient)
			r.Delete("/patient", s.ClearPatient)
			r.Put("/narrative", s.SetNarrative)
			r.Put("/reason", s.SetReason)
			r.Put("/window", s.SetWindow)
			r.Delete("/error", s.DismissError)

			backend := limited(r)
			backend.Post("/intake", s.RunIntake)
			backend.Post("/slots", s.FetchSlots)
			backend.Post("/slots/{slotID}/book", s.Book)
			backend.Post("/booked/toggle", s.ToggleBooked)
			backend.Post("/booked/refresh", s.RefreshBooked)
			backend.Post("/booked/{appointmentID}/select", s.SelectBooked)

			if cfg.Stream != nil {
				r.Get("/events", cfg.Stream.HandleWebSocket)
			}
		})
	}

	if n := cfg.Note; n != nil {
		r.Route("/note", func(r chi.Router) {
			r.Get("/", n.GetNote)
			r.Put("/sections/{section}", n.EditSection)
			r.Post("/edit-mode", n.ToggleEditMode)
			r.Post("/copy", n.Copy)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
