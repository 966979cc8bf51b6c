package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/domain/model"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

type userStore struct {
	mu    sync.RWMutex
	users map[types.SubjectID]*model.User

	// Per-subject locks so concurrent Update calls for different subjects
	// proceed in parallel, while writes to the same subject serialize.
	lockMu sync.Mutex
	locks  map[types.SubjectID]*sync.Mutex
}

func newUserStore() *userStore {
	return &userStore{
		users: make(map[types.SubjectID]*model.User),
		locks: make(map[types.SubjectID]*sync.Mutex),
	}
}

func (s *userStore) subjectLock(id types.SubjectID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *userStore) Get(ctx context.Context, id types.SubjectID) (*model.User, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("subjectID", id))
	}

	return user.Clone(), nil
}

func (s *userStore) GetActive(ctx context.Context, id types.SubjectID) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user is deleted", goerr.V("subjectID", id))
	}
	return user, nil
}

func (s *userStore) ListActive(ctx context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*model.User
	for _, user := range s.users {
		if !user.IsDeleted() {
			users = append(users, user.Clone())
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].UpdatedAt.After(users[j].UpdatedAt)
	})

	return users, nil
}

func (s *userStore) Update(ctx context.Context, id types.SubjectID, fn func(current *model.User) (*model.User, error)) (*model.User, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid subject ID")
	}

	lock := s.subjectLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.users[id]
	s.mu.RUnlock()

	var input *model.User
	if ok {
		input = current.Clone()
	}

	updated, err := fn(input)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Nothing to store (e.g., delete of a non-existent record)
		return nil, nil
	}

	if err := updated.Validate(); err != nil {
		return nil, goerr.Wrap(err, "refusing to store invalid user")
	}

	s.mu.Lock()
	s.users[id] = updated.Clone()
	s.mu.Unlock()

	return updated, nil
}
