package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

// EnsureLocal returns the local identity record for a verified subject,
// repairing a missing record just-in-time from the provider's profile API.
// Concurrent calls for the same subject coalesce into one provider fetch.
//
// A tombstoned record fails with ErrIdentityDeleted without calling the
// provider: tombstones are cleared only by provider events.
func (uc *SyncUseCase) EnsureLocal(ctx context.Context, subject types.SubjectID) (*model.User, error) {
	if err := subject.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	user, err := uc.repo.User().Get(ctx, subject)
	if err == nil {
		if user.IsDeleted() {
			return nil, goerr.Wrap(ErrIdentityDeleted, "subject is tombstoned locally", goerr.V("subjectID", subject))
		}
		return user, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to look up identity record", goerr.V("subjectID", subject))
	}

	if uc.profiles == nil {
		return nil, goerr.New("profile API is not configured", goerr.V("subjectID", subject))
	}

	v, err, _ := uc.flights.Do(subject.String(), func() (interface{}, error) {
		// The fetch is allowed to complete even if the triggering request
		// is cancelled: the repaired record benefits subsequent requests
		// for the same subject.
		fetchCtx := context.WithoutCancel(ctx)

		profile, err := uc.profiles.FetchProfile(fetchCtx, subject)
		if err != nil {
			return nil, err
		}

		if _, err := uc.Apply(fetchCtx, subject, model.OpUpsert, profile); err != nil {
			return nil, err
		}

		return uc.repo.User().GetActive(fetchCtx, subject)
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrProfileNotFound) {
			return nil, err
		}
		return nil, goerr.Wrap(err, "just-in-time repair failed", goerr.V("subjectID", subject))
	}

	return v.(*model.User), nil
}
