// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"trustcore/internal/app"
	"trustcore/internal/domain"
)

// Options configures the HTTP surface.
type Options struct {
	// AdminToken guards the administrative routes. Empty disables them.
	AdminToken     string
	AllowedOrigins []string

	// TrustForwardAuth keys the API policy by the Remote-User header. Only
	// set it behind a proxy that strips client-supplied values.
	TrustForwardAuth bool
	Image            domain.UploadOptions
	Document         domain.UploadOptions
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	recovery *app.RecoveryService
	limits   *app.RateLimitService
	uploads  *app.UploadValidator
	blobs    domain.BlobStore
	opts     Options
}

// New creates a Server wired to the given application services.
func New(recovery *app.RecoveryService, limits *app.RateLimitService, uploads *app.UploadValidator, blobs domain.BlobStore, opts Options) *Server {
	return &Server{recovery: recovery, limits: limits, uploads: uploads, blobs: blobs, opts: opts}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(withNoCache)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit(app.PolicyAPI, s.apiKey))

			r.Post("/password-reset/request", s.handleResetRequest)
			r.Get("/password-reset/verify", s.handleResetVerify)
			r.Post("/password-reset/confirm", s.handleResetConfirm)

			r.Post("/uploads/image", s.handleUpload(uploadImage))
			r.Post("/uploads/document", s.handleUpload(uploadDocument))

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Delete("/rate-limits/{policy}/{key}", s.handleRateLimitReset)
			})
		})
	})

	return r
}
