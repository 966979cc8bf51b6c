package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

const defaultDedupTTL = 15 * time.Minute

// SyncUseCase keeps the local identity store consistent with the provider.
// Both the webhook path and the JIT path converge here, so there is a single
// application semantics regardless of trigger.
type SyncUseCase struct {
	repo     interfaces.Repository
	profiles interfaces.ProfileAPI
	dedupTTL time.Duration
	flights  singleflight.Group
}

func NewSyncUseCase(repo interfaces.Repository, profiles interfaces.ProfileAPI, dedupTTL time.Duration) *SyncUseCase {
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}
	return &SyncUseCase{
		repo:     repo,
		profiles: profiles,
		dedupTTL: dedupTTL,
	}
}

// Apply reconciles one provider operation into the local store. The write
// is idempotent: applying the same logical state twice produces the same
// stored state, so redelivered events are safe without dedup. Racing writes
// to the same subject serialize at the storage layer.
func (uc *SyncUseCase) Apply(ctx context.Context, subject types.SubjectID, op model.Operation, profile *model.Profile) (model.ApplyResult, error) {
	if err := subject.Validate(); err != nil {
		return "", goerr.Wrap(err, "invalid subject ID")
	}

	switch op {
	case model.OpUpsert:
		return uc.applyUpsert(ctx, subject, profile)
	case model.OpDelete:
		return uc.applyDelete(ctx, subject)
	default:
		return "", goerr.New("unknown reconcile operation", goerr.V("op", string(op)))
	}
}

func (uc *SyncUseCase) applyUpsert(ctx context.Context, subject types.SubjectID, profile *model.Profile) (model.ApplyResult, error) {
	if profile == nil {
		return "", goerr.New("upsert requires a profile", goerr.V("subjectID", subject))
	}

	var result model.ApplyResult
	_, err := uc.repo.User().Update(ctx, subject, func(current *model.User) (*model.User, error) {
		now := time.Now()

		if current == nil {
			result = model.ApplyCreated
			return &model.User{
				SubjectID:   subject,
				Email:       profile.Email,
				DisplayName: profile.DisplayName,
				AvatarURL:   profile.AvatarURL,
				CreatedAt:   now,
				UpdatedAt:   now,
			}, nil
		}

		// A later upsert resurrects a tombstoned record: the provider says
		// the account is active again.
		if current.IsDeleted() {
			result = model.ApplyResurrected
		} else {
			result = model.ApplyUpdated
		}

		current.Email = profile.Email
		current.DisplayName = profile.DisplayName
		current.AvatarURL = profile.AvatarURL
		current.UpdatedAt = now
		current.DeletedAt = nil
		return current, nil
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to upsert identity record", goerr.V("subjectID", subject))
	}

	return result, nil
}

func (uc *SyncUseCase) applyDelete(ctx context.Context, subject types.SubjectID) (model.ApplyResult, error) {
	var result model.ApplyResult
	_, err := uc.repo.User().Update(ctx, subject, func(current *model.User) (*model.User, error) {
		if current == nil {
			// Nothing to tombstone
			result = model.ApplyNoop
			return nil, nil
		}
		if current.IsDeleted() {
			// Keep the first tombstone timestamp
			result = model.ApplyNoop
			return nil, nil
		}

		now := time.Now()
		result = model.ApplyDeleted
		current.DeletedAt = &now
		current.UpdatedAt = now
		return current, nil
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to delete identity record", goerr.V("subjectID", subject))
	}

	return result, nil
}

// ProcessEvent applies a decoded webhook event. Returns the apply result
// and whether the event was a confirmed duplicate. Duplicates are skipped
// without touching the store; the dedup mark is only written after a
// successful apply, so a storage failure leaves the event unmarked and a
// provider redelivery will reprocess it.
func (uc *SyncUseCase) ProcessEvent(ctx context.Context, event *model.WebhookEvent) (model.ApplyResult, bool, error) {
	if err := event.Validate(); err != nil {
		return "", false, goerr.Wrap(err, "invalid webhook event")
	}

	seen, err := uc.repo.WebhookDedup().Processed(ctx, event.ID)
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to check event dedup", goerr.V("eventID", event.ID))
	}
	if seen {
		return model.ApplyNoop, true, nil
	}

	op, err := event.Operation()
	if err != nil {
		return "", false, err
	}

	result, err := uc.Apply(ctx, event.Subject, op, event.Profile)
	if err != nil {
		return "", false, err
	}

	// Dedup is an optimization over the idempotent write: if the mark
	// fails, a redelivery reapplies harmlessly, so log and move on.
	if _, err := uc.repo.WebhookDedup().MarkProcessed(ctx, event.ID, uc.dedupTTL); err != nil {
		logging.From(ctx).Warn("failed to mark event as processed",
			"eventID", event.ID, "error", err)
	}

	return result, false, nil
}

// ActiveUsers lists the non-tombstoned local identity records
func (uc *SyncUseCase) ActiveUsers(ctx context.Context) ([]*model.User, error) {
	return uc.repo.User().ListActive(ctx)
}
