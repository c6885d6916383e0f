package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/raditia/duet-media/internal/api"
	"github.com/raditia/duet-media/internal/handler"
)

// Server holds the application handler and HTTP router.
type Server struct {
	Handler *handler.Handler
	Router  chi.Router
}

// New creates a new Server with a fully configured chi router.
func New(h *handler.Handler) *Server {
	s := &Server{Handler: h}

	r := chi.NewRouter()

	// CORS — must be before other middleware to handle preflight OPTIONS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(api.RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)

	// Unknown routes get the JSON envelope, not chi's plain-text 404.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.NotFound(w, "no such endpoint")
	})

	// Health check (no auth required).
	r.Get("/health", s.Health)

	// API routes.
	r.Route("/api", func(r chi.Router) {
		r.Use(api.AuthMiddleware(h.Config.AuthToken))

		r.Post("/media/sign", h.Sign)
		r.Post("/media/destroy", h.Destroy)
		r.Get("/media/resources", h.ListResources)

		r.Get("/gallery", h.Gallery)

		r.Post("/tools/transform", h.Transform)

		r.Get("/quote/gold", h.GoldQuote)
	})

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.Handler.Logger.Error().Err(err).Msg("failed to encode health response")
	}
}
