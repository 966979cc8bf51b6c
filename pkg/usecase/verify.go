package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model/auth"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

const defaultClockSkew = 10 * time.Second

// SessionUseCase verifies provider-issued session tokens and extracts
// structured claims. It never touches the identity store: authorization
// context comes entirely from the token, keeping the hot request path free
// of a database round trip.
type SessionUseCase struct {
	keys interfaces.KeyProvider
	skew time.Duration
}

func NewSessionUseCase(keys interfaces.KeyProvider, skew time.Duration) *SessionUseCase {
	if skew <= 0 {
		skew = defaultClockSkew
	}
	return &SessionUseCase{
		keys: keys,
		skew: skew,
	}
}

// VerifyToken parses and verifies a raw bearer token against the provider's
// current keys and returns the claim set. Failures map to ErrTokenMalformed,
// ErrTokenUnverified, or ErrTokenExpired.
func (uc *SessionUseCase) VerifyToken(ctx context.Context, raw string) (*auth.SessionClaims, error) {
	if uc.keys == nil {
		return nil, goerr.New("key provider is not configured")
	}
	if raw == "" {
		return nil, goerr.Wrap(ErrTokenMalformed, "empty token")
	}

	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return nil, goerr.Wrap(ErrTokenMalformed, "failed to parse token structure", goerr.V("cause", err.Error()))
	}

	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return nil, goerr.Wrap(ErrTokenMalformed, "token carries no signature")
	}

	headers := sigs[0].ProtectedHeaders()
	keyID := headers.KeyID()
	if keyID == "" {
		return nil, goerr.Wrap(ErrTokenUnverified, "token has no key ID")
	}

	key, err := uc.keys.Get(ctx, keyID)
	if err != nil {
		return nil, goerr.Wrap(ErrTokenUnverified, "failed to resolve verification key", goerr.V("keyID", keyID), goerr.V("cause", err.Error()))
	}

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(headers.Algorithm(), key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(uc.skew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) || errors.Is(err, jwt.ErrTokenNotYetValid()) {
			return nil, goerr.Wrap(ErrTokenExpired, "token outside validity window", goerr.V("cause", err.Error()))
		}
		return nil, goerr.Wrap(ErrTokenUnverified, "failed to verify token", goerr.V("keyID", keyID), goerr.V("cause", err.Error()))
	}

	if token.Subject() == "" {
		return nil, goerr.Wrap(ErrTokenMalformed, "token has no subject")
	}

	claims := &auth.SessionClaims{
		Subject:          types.SubjectID(token.Subject()),
		OrganizationID:   types.OrgID(stringClaim(token, "org_id")),
		OrganizationSlug: stringClaim(token, "org_slug"),
		OrganizationRole: stringClaim(token, "org_role"),
		Permissions:      stringsClaim(token, "org_permissions"),
		ExpiresAt:        token.Expiration(),
	}

	if err := claims.Validate(); err != nil {
		return nil, goerr.Wrap(ErrTokenMalformed, "token claims are incomplete", goerr.V("cause", err.Error()))
	}

	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func stringsClaim(token jwt.Token, name string) []string {
	v, ok := token.Get(name)
	if !ok {
		return nil
	}

	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var values []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values
}
