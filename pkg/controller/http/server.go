package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yata-dev/yata-server/pkg/usecase"
	"github.com/yata-dev/yata-server/pkg/utils/errutil"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
)

type Server struct {
	router *chi.Mux
	uc     *usecase.UseCases

	webhookSecret string
	webhookSkew   time.Duration
}

type Options func(*Server)

// WithWebhook enables the webhook endpoint with the shared signing secret
// and the acceptable delivery timestamp skew
func WithWebhook(signingSecret string, skew time.Duration) Options {
	return func(s *Server) {
		s.webhookSecret = signingSecret
		s.webhookSkew = skew
	}
}

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	r := chi.NewRouter()

	s := &Server{
		router:      r,
		uc:          uc,
		webhookSkew: defaultWebhookSkew,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/", healthHandler)

	// Webhook endpoint - no bearer auth, protected by signature verification
	if s.webhookSecret != "" {
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(WebhookSignatureMiddleware(s.webhookSecret, s.webhookSkew))
			r.Post("/identity", webhookHandler(s.uc.Sync))
		})
	}

	// Protected API surface
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.uc.Session))

		r.With(resolveIdentity(s.uc.Sync)).Get("/me", meHandler())

		// Organization-scoped routes: the org check is cheaper than
		// identity resolution and runs first.
		r.Route("/org", func(r chi.Router) {
			r.Use(requireOrganization)
			r.Use(resolveIdentity(s.uc.Sync))
			r.Get("/members", membersHandler(s.uc.Sync))
		})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"message": "Server healthy.",
		"code":    http.StatusOK,
	})
}

// writeJSON writes a JSON response with proper error handling
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		errutil.Handle(ctx, err, "failed to encode JSON response")
	}
}
