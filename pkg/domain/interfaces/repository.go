package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// ErrNotFound is returned by repository lookups when no record exists.
// Both backends wrap this sentinel so callers can use errors.Is.
var ErrNotFound = goerr.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	User() UserRepository
	WebhookDedup() WebhookDedupRepository
	Close() error
}

// UserRepository provides storage operations for local identity records.
//
// Write serialization policy: all mutations go through Update, which holds
// a per-subject lock (storage row lock or equivalent) for the duration of
// the read-modify-write. Unrelated subjects proceed in parallel; racing
// writes to the same subject serialize, so the stored record is always one
// of the inputs, never a merge of both.
type UserRepository interface {
	// Get retrieves a record by subject ID, including tombstoned records.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, id types.SubjectID) (*model.User, error)

	// GetActive retrieves a record by subject ID, treating tombstoned
	// records as absent. Returns ErrNotFound for missing or deleted records.
	GetActive(ctx context.Context, id types.SubjectID) (*model.User, error)

	// ListActive retrieves all non-tombstoned records ordered by most
	// recently updated.
	ListActive(ctx context.Context) ([]*model.User, error)

	// Update performs an atomic read-modify-write for the subject. fn
	// receives the current record (nil when absent) and returns the record
	// to store. Returning an error aborts without writing.
	Update(ctx context.Context, id types.SubjectID, fn func(current *model.User) (*model.User, error)) (*model.User, error)
}

// WebhookDedupRepository tracks recently processed webhook event IDs so
// redelivered events can be acknowledged without reapplying. This is an
// optimization: the reconciler write itself is idempotent, so losing a
// dedup record is safe.
type WebhookDedupRepository interface {
	// Processed reports whether the event has already been marked and the
	// mark has not expired.
	Processed(ctx context.Context, id types.EventID) (bool, error)

	// MarkProcessed records that the event has been processed, with the
	// given retention. It returns true when this call was the first to
	// record the event, false when the event was already marked and has
	// not expired.
	MarkProcessed(ctx context.Context, id types.EventID, ttl time.Duration) (bool, error)

	// PurgeExpired removes dedup records that expired before now and
	// returns the number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
