package memory

import (
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
)

// Repository is an in-memory implementation for development and testing
type Repository struct {
	users *userStore
	dedup *dedupStore
}

var _ interfaces.Repository = &Repository{}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		users: newUserStore(),
		dedup: newDedupStore(),
	}
}

func (r *Repository) User() interfaces.UserRepository {
	return r.users
}

func (r *Repository) WebhookDedup() interfaces.WebhookDedupRepository {
	return r.dedup
}

func (r *Repository) Close() error {
	return nil
}
