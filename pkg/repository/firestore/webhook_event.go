package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const dedupCollection = "webhook_events"

// dedupRecord marks a processed webhook delivery. Records are short-lived;
// the sweeper worker purges them after expiry.
type dedupRecord struct {
	EventID     string    `firestore:"event_id"`
	ProcessedAt time.Time `firestore:"processed_at"`
	ExpiresAt   time.Time `firestore:"expires_at"`
}

type dedupRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newDedupRepository(client *firestore.Client) *dedupRepository {
	return &dedupRepository{client: client}
}

func (r *dedupRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + dedupCollection)
}

func (r *dedupRepository) Processed(ctx context.Context, id types.EventID) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, goerr.Wrap(err, "invalid event ID")
	}

	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to get dedup record", goerr.V("eventID", id))
	}

	var rec dedupRecord
	if err := doc.DataTo(&rec); err != nil {
		return false, goerr.Wrap(err, "failed to unmarshal dedup record", goerr.V("eventID", id))
	}

	return time.Now().Before(rec.ExpiresAt), nil
}

func (r *dedupRepository) MarkProcessed(ctx context.Context, id types.EventID, ttl time.Duration) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, goerr.Wrap(err, "invalid event ID")
	}

	ref := r.collection().Doc(id.String())

	var first bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		first = false

		now := time.Now()
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get dedup record", goerr.V("eventID", id))
			}
		} else {
			var rec dedupRecord
			if err := doc.DataTo(&rec); err != nil {
				return goerr.Wrap(err, "failed to unmarshal dedup record", goerr.V("eventID", id))
			}
			if now.Before(rec.ExpiresAt) {
				// Already processed and still within retention
				return nil
			}
		}

		rec := dedupRecord{
			EventID:     id.String(),
			ProcessedAt: now,
			ExpiresAt:   now.Add(ttl),
		}
		if err := tx.Set(ref, rec); err != nil {
			return goerr.Wrap(err, "failed to set dedup record", goerr.V("eventID", id))
		}

		first = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return first, nil
}

func (r *dedupRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	iter := r.collection().Where("expires_at", "<", now).Documents(ctx)
	defer iter.Stop()

	var purged int
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, goerr.Wrap(err, "failed to query expired dedup records")
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			return purged, goerr.Wrap(err, "failed to delete dedup record", goerr.V("doc", doc.Ref.ID))
		}
		purged++
	}

	return purged, nil
}
