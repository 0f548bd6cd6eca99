// Package memstore is an in-process [codify.CredentialStore] for tests,
// tooling and single-process embedding. Transactions hold the store lock for
// their whole duration and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/arturkam25/Codify"
)

var (
	_ codify.CredentialStore = (*Store)(nil)
	_ codify.CredentialStore = txStore{}
)

// Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	data *data
}

type data struct {
	users  map[int64]codify.User
	nextID int64
}

// New returns an empty store. Ids start at 1.
func New() *Store {
	return &Store{data: &data{users: make(map[int64]codify.User), nextID: 1}}
}

func (d *data) clone() *data {
	out := &data{users: make(map[int64]codify.User, len(d.users)), nextID: d.nextID}
	for id, u := range d.users {
		out.users[id] = u
	}
	return out
}

func (s *Store) view() txStore {
	return txStore{d: s.data}
}

func (s *Store) InsertUser(ctx context.Context, u codify.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertUser(ctx, u)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*codify.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUserByID(ctx, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*codify.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUserByUsername(ctx, username)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*codify.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUserByEmail(ctx, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]codify.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUsers(ctx)
}

func (s *Store) UpdateUserFields(ctx context.Context, id int64, patch codify.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateUserFields(ctx, id, patch)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteUser(ctx, id)
}

func (s *Store) FirstAdminID(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FirstAdminID(ctx)
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, id int64, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().IncrementFailedAttempts(ctx, id, limit)
}

func (s *Store) PromoteIfNoAdmin(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().PromoteIfNoAdmin(ctx, id)
}

// WithinTx runs fn with the store locked. On error or panic the data is
// restored to its state before fn ran.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx codify.CredentialStore) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, s.view())
}

// txStore operates on data without locking. The caller holds Store.mu.
type txStore struct {
	d *data
}

func (t txStore) InsertUser(_ context.Context, u codify.User) (int64, error) {
	if t.conflicts(0, u.Username, u.Email) {
		return 0, codify.ErrAccountExists
	}
	u.ID = t.d.nextID
	t.d.nextID++
	t.d.users[u.ID] = u
	return u.ID, nil
}

func (t txStore) GetUserByID(_ context.Context, id int64) (*codify.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, codify.ErrUserNotFound
	}
	return &u, nil
}

func (t txStore) GetUserByUsername(_ context.Context, username string) (*codify.User, error) {
	for _, u := range t.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, codify.ErrUserNotFound
}

func (t txStore) GetUserByEmail(_ context.Context, email string) (*codify.User, error) {
	for _, u := range t.d.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, codify.ErrUserNotFound
}

func (t txStore) ListUsers(context.Context) ([]codify.User, error) {
	out := make([]codify.User, 0, len(t.d.users))
	for _, u := range t.d.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b codify.User) int {
		if a.IsAdmin != b.IsAdmin {
			if a.IsAdmin {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (t txStore) UpdateUserFields(_ context.Context, id int64, patch codify.UserPatch) error {
	u, ok := t.d.users[id]
	if !ok {
		return codify.ErrUserNotFound
	}
	if patch.Email != nil && t.conflicts(id, "", *patch.Email) {
		return codify.ErrAccountExists
	}

	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.IsAdmin != nil {
		u.IsAdmin = *patch.IsAdmin
	}
	if patch.Disabled != nil {
		u.Disabled = *patch.Disabled
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.LicenseKey != nil {
		u.LicenseKey = *patch.LicenseKey
	}
	if patch.FailedAttempts != nil {
		u.FailedAttempts = *patch.FailedAttempts
	}
	if patch.RecoveryCode != nil {
		u.RecoveryCode = *patch.RecoveryCode
	}

	t.d.users[id] = u
	return nil
}

func (t txStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := t.d.users[id]; !ok {
		return codify.ErrUserNotFound
	}
	delete(t.d.users, id)
	return nil
}

func (t txStore) FirstAdminID(context.Context) (int64, bool, error) {
	var (
		first int64
		found bool
	)
	for id, u := range t.d.users {
		if u.IsAdmin && (!found || id < first) {
			first = id
			found = true
		}
	}
	return first, found, nil
}

func (t txStore) IncrementFailedAttempts(_ context.Context, id int64, limit int) (int, error) {
	u, ok := t.d.users[id]
	if !ok {
		return 0, codify.ErrUserNotFound
	}
	u.FailedAttempts++
	if limit > 0 && u.FailedAttempts > limit {
		u.FailedAttempts = limit
	}
	t.d.users[id] = u
	return u.FailedAttempts, nil
}

func (t txStore) PromoteIfNoAdmin(_ context.Context, id int64) (bool, error) {
	u, ok := t.d.users[id]
	if !ok {
		return false, codify.ErrUserNotFound
	}
	for _, other := range t.d.users {
		if other.IsAdmin {
			return false, nil
		}
	}
	u.IsAdmin = true
	u.Role = codify.RoleAdmin
	t.d.users[id] = u
	return true, nil
}

func (t txStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx codify.CredentialStore) error) error {
	return fn(ctx, t)
}

func (t txStore) conflicts(selfID int64, username, email string) bool {
	for id, u := range t.d.users {
		if id == selfID {
			continue
		}
		if username != "" && u.Username == username {
			return true
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
