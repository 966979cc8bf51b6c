package auth

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// SessionClaims is the structured claim set extracted from a verified
// session token. It is ephemeral and never persisted; it is only trusted
// after signature verification against a currently valid provider key.
// The organization fields are optional: a session without an active
// organization carries empty values.
type SessionClaims struct {
	Subject          types.SubjectID
	OrganizationID   types.OrgID
	OrganizationSlug string
	OrganizationRole string
	Permissions      []string
	ExpiresAt        time.Time
}

// Validate checks if the SessionClaims is valid
func (c *SessionClaims) Validate() error {
	if err := c.Subject.Validate(); err != nil {
		return goerr.Wrap(err, "invalid session claims")
	}
	if c.ExpiresAt.IsZero() {
		return goerr.New("session claims have no expiry", goerr.V("subject", c.Subject))
	}
	return nil
}

// HasOrganization reports whether the session has an active organization
func (c *SessionClaims) HasOrganization() bool {
	return c.OrganizationID != ""
}

type ctxClaimsKey struct{}
type ctxIdentityKey struct{}

// ContextWithClaims embeds verified session claims into the context
func ContextWithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey{}, claims)
}

// ClaimsFromContext retrieves session claims from the context. The second
// return value is false when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(ctxClaimsKey{}).(*SessionClaims)
	return claims, ok
}

// ContextWithIdentity embeds the resolved local identity record into the
// context
func ContextWithIdentity(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, user)
}

// IdentityFromContext retrieves the resolved local identity record
func IdentityFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(ctxIdentityKey{}).(*model.User)
	return user, ok
}
