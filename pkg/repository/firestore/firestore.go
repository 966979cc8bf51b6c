package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
)

// Firestore is the production repository backend. Identity records live in
// the users collection keyed by subject ID, so per-subject transactions act
// as row-level locks.
type Firestore struct {
	client *firestore.Client
	users  *userRepository
	dedup  *dedupRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix prefixes all collection names, used to isolate test
// data when running against a shared project
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.users.collectionPrefix = prefix
		f.dedup.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("projectID", projectID))
	}

	f := &Firestore{
		client: client,
		users:  newUserRepository(client),
		dedup:  newDedupRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) User() interfaces.UserRepository {
	return f.users
}

func (f *Firestore) WebhookDedup() interfaces.WebhookDedupRepository {
	return f.dedup
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
