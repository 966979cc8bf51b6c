package interfaces

import (
	"context"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// ErrProfileNotFound is returned by ProfileAPI when the provider no longer
// recognizes the subject. A valid token with no provider profile means the
// account was deleted at the provider after token issuance.
var ErrProfileNotFound = goerr.New("profile not found at provider")

// KeySource retrieves the provider's current public signature keys
type KeySource interface {
	FetchKeySet(ctx context.Context) (jwk.Set, error)
}

// ProfileAPI fetches account profiles from the identity provider
type ProfileAPI interface {
	FetchProfile(ctx context.Context, id types.SubjectID) (*model.Profile, error)
}

// KeyProvider resolves a verification key by its key ID, refreshing from
// the KeySource as needed
type KeyProvider interface {
	Get(ctx context.Context, keyID string) (jwk.Key, error)
}
