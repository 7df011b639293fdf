// Package http provides the HTTP delivery layer of the service: JSON
// endpoints for allocating and inspecting short codes and a root-level
// endpoint that follows a code to its stored value.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/metrics"

	httpSwagger "github.com/swaggo/http-swagger"
)

// maxRequestBodyBytes bounds the size of a submitted value.
const maxRequestBodyBytes = 1 << 20

// NewRouter initializes a Chi router with the service middleware and routes.
// Metrics are served on /metrics; a nil m serves 404 there.
func NewRouter(logger *httplog.Logger, registry registry, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger.yml")
	})

	r.Method(http.MethodGet, "/metrics", m.Handler())

	h := newRecordHandler(registry, validator.New())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/shorten", func(r chi.Router) {
			r.With(middleware.RequestSize(maxRequestBodyBytes)).Post("/", h.allocate)

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", h.resolve)
				r.Get("/stats", h.stats)
			})
		})
	})

	r.Get("/{code}", h.follow)

	return r
}
