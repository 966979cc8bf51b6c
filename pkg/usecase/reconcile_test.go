package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
	"github.com/yata-dev/yata-server/pkg/repository/memory"
	"github.com/yata-dev/yata-server/pkg/usecase"
)

func testProfile(email string) *model.Profile {
	return &model.Profile{
		Email:       email,
		DisplayName: "Test User",
		AvatarURL:   "https://img.example.com/u.png",
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert creates a new record", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		result, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyCreated)

		user, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("a@example.com")
		gt.Bool(t, user.CreatedAt.IsZero()).False()
		gt.Bool(t, user.IsDeleted()).False()
	})

	t.Run("upsert updates an existing record", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()

		before, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()

		result, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("b@example.com"))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyUpdated)

		after, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, after.Email).Equal("b@example.com")
		gt.Value(t, after.CreatedAt).Equal(before.CreatedAt)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()
		_, err = uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()

		user, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("a@example.com")

		users, err := repo.User().ListActive(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, len(users)).Equal(1)
	})

	t.Run("delete tombstones the record", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()

		result, err := uc.Sync.Apply(ctx, "user_1", model.OpDelete, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyDeleted)

		user, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Bool(t, user.IsDeleted()).True()

		// Tombstoned records are invisible to active lookups
		_, err = repo.User().GetActive(ctx, "user_1")
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("delete of an absent record is a noop", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		result, err := uc.Sync.Apply(ctx, "user_missing", model.OpDelete, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyNoop)

		_, err = repo.User().Get(ctx, "user_missing")
		gt.Bool(t, errors.Is(err, interfaces.ErrNotFound)).True()
	})

	t.Run("redelivered delete keeps the first tombstone time", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()
		_, err = uc.Sync.Apply(ctx, "user_1", model.OpDelete, nil)
		gt.NoError(t, err).Required()

		first, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()

		time.Sleep(10 * time.Millisecond)

		result, err := uc.Sync.Apply(ctx, "user_1", model.OpDelete, nil)
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyNoop)

		second, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, *second.DeletedAt).Equal(*first.DeletedAt)
	})

	t.Run("upsert after delete resurrects the record", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("a@example.com"))
		gt.NoError(t, err).Required()
		_, err = uc.Sync.Apply(ctx, "user_1", model.OpDelete, nil)
		gt.NoError(t, err).Required()

		result, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, testProfile("back@example.com"))
		gt.NoError(t, err).Required()
		gt.Value(t, result).Equal(model.ApplyResurrected)

		user, err := repo.User().GetActive(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("back@example.com")
		gt.Bool(t, user.IsDeleted()).False()
	})

	t.Run("upsert without a profile fails", func(t *testing.T) {
		uc := usecase.New(memory.New())

		_, err := uc.Sync.Apply(ctx, "user_1", model.OpUpsert, nil)
		gt.Error(t, err)
	})

	t.Run("invalid subject fails", func(t *testing.T) {
		uc := usecase.New(memory.New())

		_, err := uc.Sync.Apply(ctx, "", model.OpUpsert, testProfile("a@example.com"))
		gt.Error(t, err)
	})
}

func TestProcessEvent(t *testing.T) {
	ctx := context.Background()

	newEvent := func(id, kind, subject string, profile *model.Profile) *model.WebhookEvent {
		return &model.WebhookEvent{
			ID:      types.EventID(id),
			Kind:    types.EventKind(kind),
			Subject: types.SubjectID(subject),
			Profile: profile,
		}
	}

	t.Run("first delivery applies and marks processed", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		result, duplicate, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_1", "user.created", "user_1", testProfile("a@example.com")))
		gt.NoError(t, err).Required()
		gt.Bool(t, duplicate).False()
		gt.Value(t, result).Equal(model.ApplyCreated)

		seen, err := repo.WebhookDedup().Processed(ctx, "evt_1")
		gt.NoError(t, err).Required()
		gt.Bool(t, seen).True()
	})

	t.Run("redelivery with the same event ID is skipped", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, _, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_1", "user.created", "user_1", testProfile("a@example.com")))
		gt.NoError(t, err).Required()

		// Redelivery carries a different payload; the dedup check still
		// wins, so the stored record must not change.
		result, duplicate, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_1", "user.updated", "user_1", testProfile("changed@example.com")))
		gt.NoError(t, err).Required()
		gt.Bool(t, duplicate).True()
		gt.Value(t, result).Equal(model.ApplyNoop)

		user, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("a@example.com")
	})

	t.Run("distinct event IDs both apply", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		_, _, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_1", "user.created", "user_1", testProfile("a@example.com")))
		gt.NoError(t, err).Required()

		result, duplicate, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_2", "user.updated", "user_1", testProfile("b@example.com")))
		gt.NoError(t, err).Required()
		gt.Bool(t, duplicate).False()
		gt.Value(t, result).Equal(model.ApplyUpdated)

		user, err := repo.User().Get(ctx, "user_1")
		gt.NoError(t, err).Required()
		gt.Value(t, user.Email).Equal("b@example.com")
	})

	t.Run("failed apply leaves the event unmarked", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo)

		// user.created without a profile fails at apply time
		_, _, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_bad", "user.created", "user_1", nil))
		gt.Error(t, err)

		seen, err := repo.WebhookDedup().Processed(ctx, "evt_bad")
		gt.NoError(t, err).Required()
		gt.Bool(t, seen).False()
	})

	t.Run("invalid event is rejected before touching the store", func(t *testing.T) {
		uc := usecase.New(memory.New())

		_, _, err := uc.Sync.ProcessEvent(ctx,
			newEvent("", "user.created", "user_1", testProfile("a@example.com")))
		gt.Error(t, err)
		gt.Bool(t, goerr.HasTag(err, model.TagInvalidEvent)).True()
	})

	t.Run("missing subject is tagged as permanently invalid", func(t *testing.T) {
		uc := usecase.New(memory.New())

		_, _, err := uc.Sync.ProcessEvent(ctx,
			newEvent("evt_nosub", "user.created", "", testProfile("a@example.com")))
		gt.Error(t, err)
		gt.Bool(t, goerr.HasTag(err, model.TagInvalidEvent)).True()
	})
}

func TestActiveUsers(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	uc := usecase.New(repo)

	_, err := uc.Sync.Apply(ctx, "user_a", model.OpUpsert, testProfile("a@example.com"))
	gt.NoError(t, err).Required()
	_, err = uc.Sync.Apply(ctx, "user_b", model.OpUpsert, testProfile("b@example.com"))
	gt.NoError(t, err).Required()
	_, err = uc.Sync.Apply(ctx, "user_b", model.OpDelete, nil)
	gt.NoError(t, err).Required()

	users, err := uc.Sync.ActiveUsers(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, len(users)).Equal(1)
	gt.Value(t, users[0].SubjectID.String()).Equal("user_a")
}
