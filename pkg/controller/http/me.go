package http

import (
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/model/auth"
	"github.com/yata-dev/yata-server/pkg/usecase"
	"github.com/yata-dev/yata-server/pkg/utils/errutil"
)

// meHandler returns the caller's resolved local identity alongside the
// session's organization context
func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, ok := auth.ClaimsFromContext(ctx)
		if !ok {
			errutil.HandleHTTP(ctx, w, goerr.New("no session claims in context"), http.StatusUnauthorized)
			return
		}
		user, ok := auth.IdentityFromContext(ctx)
		if !ok {
			errutil.HandleHTTP(ctx, w, goerr.New("no resolved identity in context"), http.StatusInternalServerError)
			return
		}

		resp := map[string]any{
			"user": user,
		}
		if claims.HasOrganization() {
			resp["organization"] = map[string]any{
				"id":          claims.OrganizationID,
				"slug":        claims.OrganizationSlug,
				"role":        claims.OrganizationRole,
				"permissions": claims.Permissions,
			}
		}

		writeJSON(ctx, w, http.StatusOK, resp)
	}
}

// membersHandler lists active identity records for the caller's organization
func membersHandler(sync *usecase.SyncUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		users, err := sync.ActiveUsers(ctx)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to list members"), http.StatusInternalServerError)
			return
		}

		writeJSON(ctx, w, http.StatusOK, map[string]any{
			"members": users,
			"count":   len(users),
		})
	}
}
