package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usersCollection = "users"

type userRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newUserRepository(client *firestore.Client) *userRepository {
	return &userRepository{client: client}
}

func (r *userRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + usersCollection)
}

func (r *userRepository) Get(ctx context.Context, id types.SubjectID) (*model.User, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("subjectID", id))
		}
		return nil, goerr.Wrap(err, "failed to get user from firestore", goerr.V("subjectID", id))
	}

	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user", goerr.V("subjectID", id))
	}

	return &user, nil
}

func (r *userRepository) GetActive(ctx context.Context, id types.SubjectID) (*model.User, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user is deleted", goerr.V("subjectID", id))
	}
	return user, nil
}

func (r *userRepository) ListActive(ctx context.Context) ([]*model.User, error) {
	// Requires the composite index (deleted_at ASC, updated_at DESC)
	// managed by the migrate command.
	iter := r.collection().
		Where("deleted_at", "==", nil).
		OrderBy("updated_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var users []*model.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list active users")
		}

		var user model.User
		if err := doc.DataTo(&user); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user", goerr.V("doc", doc.Ref.ID))
		}
		users = append(users, &user)
	}

	return users, nil
}

func (r *userRepository) Update(ctx context.Context, id types.SubjectID, fn func(current *model.User) (*model.User, error)) (*model.User, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	ref := r.collection().Doc(id.String())

	var result *model.User
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = nil

		var current *model.User
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get user in transaction", goerr.V("subjectID", id))
			}
		} else {
			var user model.User
			if err := doc.DataTo(&user); err != nil {
				return goerr.Wrap(err, "failed to unmarshal user", goerr.V("subjectID", id))
			}
			current = &user
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}
		if updated == nil {
			return nil
		}

		if err := updated.Validate(); err != nil {
			return goerr.Wrap(err, "refusing to store invalid user")
		}

		if err := tx.Set(ref, updated); err != nil {
			return goerr.Wrap(err, "failed to set user in transaction", goerr.V("subjectID", id))
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
