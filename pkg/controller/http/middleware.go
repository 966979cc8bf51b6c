package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model/auth"
	"github.com/yata-dev/yata-server/pkg/usecase"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
)

// authMiddleware verifies the bearer token and threads the resulting claims
// through the request context. Responses never carry detail beyond
// "unauthenticated"; the cause is only logged.
func authMiddleware(session *usecase.SessionUseCase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			claims, err := session.VerifyToken(r.Context(), raw)
			if err != nil {
				logging.From(r.Context()).Warn("token verification failed", "error", err)
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireOrganization rejects sessions without an active organization.
// Runs before identity resolution: a missing organization is a 403
// regardless of whether the subject resolves locally.
func requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok || !claims.HasOrganization() {
			http.Error(w, "no organization selected", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveIdentity ensures a local identity record exists for the verified
// subject, repairing it just-in-time when a webhook was missed
func resolveIdentity(sync *usecase.SyncUseCase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			user, err := sync.EnsureLocal(r.Context(), claims.Subject)
			if err != nil {
				switch {
				case errors.Is(err, interfaces.ErrProfileNotFound), errors.Is(err, usecase.ErrIdentityDeleted):
					// Token was valid but the account no longer exists:
					// treat as unauthenticated.
					logging.From(r.Context()).Warn("identity resolution rejected subject",
						"subject", claims.Subject, "error", err)
					http.Error(w, "unauthenticated", http.StatusUnauthorized)
				default:
					logging.From(r.Context()).Error("identity resolution failed",
						"subject", claims.Subject, "error", err)
					http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
				}
				return
			}

			ctx := auth.ContextWithIdentity(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
