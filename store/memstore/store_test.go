package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arturkam25/Codify"
)

func seed(t *testing.T, s *Store, users ...codify.User) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		id, err := s.InsertUser(context.Background(), u)
		if err != nil {
			t.Fatalf("InsertUser(%s): %v", u.Username, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	s := New()
	ids := seed(t, s,
		codify.User{Username: "alice", Email: "alice@x.com"},
		codify.User{Username: "bob", Email: "bob@x.com"},
	)
	if ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestInsertRejectsDuplicates(t *testing.T) {
	s := New()
	seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	if _, err := s.InsertUser(context.Background(), codify.User{Username: "alice", Email: "other@x.com"}); !errors.Is(err, codify.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists for username, got %v", err)
	}
	if _, err := s.InsertUser(context.Background(), codify.User{Username: "other", Email: "ALICE@x.com"}); !errors.Is(err, codify.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists for email, got %v", err)
	}
}

func TestLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	if _, err := s.GetUserByUsername(ctx, "Alice"); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected username lookup to be case sensitive, got %v", err)
	}
	u, err := s.GetUserByEmail(ctx, "alice@x.com")
	if err != nil || u.Username != "alice" {
		t.Fatalf("GetUserByEmail: %+v %v", u, err)
	}
	if _, err := s.GetUserByID(ctx, 42); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReturnedUsersAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s, codify.User{Username: "alice", Email: "alice@x.com", Role: "user"})

	u, _ := s.GetUserByID(ctx, ids[0])
	u.Role = "admin"

	again, _ := s.GetUserByID(ctx, ids[0])
	if again.Role != "user" {
		t.Fatalf("store mutated through returned pointer")
	}
}

func TestListUsersAdminsFirst(t *testing.T) {
	s := New()
	seed(t, s,
		codify.User{Username: "u1", Email: "u1@x.com"},
		codify.User{Username: "a2", Email: "a2@x.com", IsAdmin: true},
		codify.User{Username: "u3", Email: "u3@x.com"},
		codify.User{Username: "a4", Email: "a4@x.com", IsAdmin: true},
	)

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	var got []string
	for _, u := range users {
		got = append(got, u.Username)
	}
	want := []string{"a2", "a4", "u1", "u3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestFirstAdminID(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s,
		codify.User{Username: "u1", Email: "u1@x.com"},
		codify.User{Username: "a2", Email: "a2@x.com"},
		codify.User{Username: "a3", Email: "a3@x.com", IsAdmin: true},
	)

	if _, ok, _ := New().FirstAdminID(ctx); ok {
		t.Fatal("expected no admin in empty store")
	}

	id, ok, err := s.FirstAdminID(ctx)
	if err != nil || !ok || id != ids[2] {
		t.Fatalf("FirstAdminID = %d %v %v", id, ok, err)
	}

	admin := true
	if err := s.UpdateUserFields(ctx, ids[1], codify.UserPatch{IsAdmin: &admin}); err != nil {
		t.Fatalf("UpdateUserFields: %v", err)
	}
	id, _, _ = s.FirstAdminID(ctx)
	if id != ids[1] {
		t.Fatalf("expected lower id to become first admin, got %d", id)
	}
}

func TestIncrementFailedAttemptsSaturates(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementFailedAttempts(ctx, ids[0], 3)
		if err != nil || got != want {
			t.Fatalf("increment %d: got %d err=%v", want, got, err)
		}
	}
	got, _ := s.IncrementFailedAttempts(ctx, ids[0], 3)
	if got != 3 {
		t.Fatalf("expected counter to saturate at 3, got %d", got)
	}
}

func TestPromoteIfNoAdmin(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s,
		codify.User{Username: "alice", Email: "alice@x.com", Role: codify.RoleUser},
		codify.User{Username: "bob", Email: "bob@x.com", Role: codify.RoleUser},
	)

	ok, err := s.PromoteIfNoAdmin(ctx, ids[1])
	if err != nil || !ok {
		t.Fatalf("first promotion: %v %v", ok, err)
	}
	ok, err = s.PromoteIfNoAdmin(ctx, ids[0])
	if err != nil || ok {
		t.Fatalf("second promotion must be refused: %v %v", ok, err)
	}

	u, _ := s.GetUserByID(ctx, ids[1])
	if !u.IsAdmin || u.Role != codify.RoleAdmin {
		t.Fatalf("unexpected promoted user %+v", u)
	}
}

func TestConcurrentPromotionGrantsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	var users []codify.User
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		users = append(users, codify.User{Username: name, Email: name + "@x.com"})
	}
	ids := seed(t, s, users...)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		promoted int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ok, err := s.PromoteIfNoAdmin(ctx, id)
			if err != nil {
				t.Errorf("PromoteIfNoAdmin: %v", err)
				return
			}
			if ok {
				mu.Lock()
				promoted++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if promoted != 1 {
		t.Fatalf("expected exactly one promotion, got %d", promoted)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx codify.CredentialStore) error {
		disabled := true
		if err := tx.UpdateUserFields(ctx, ids[0], codify.UserPatch{Disabled: &disabled}); err != nil {
			return err
		}
		if _, err := tx.InsertUser(ctx, codify.User{Username: "bob", Email: "bob@x.com"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	u, _ := s.GetUserByID(ctx, ids[0])
	if u.Disabled {
		t.Fatal("update was not rolled back")
	}
	if _, err := s.GetUserByUsername(ctx, "bob"); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("insert was not rolled back: %v", err)
	}
}

func TestWithinTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	err := s.WithinTx(ctx, func(ctx context.Context, tx codify.CredentialStore) error {
		_, err := tx.IncrementFailedAttempts(ctx, ids[0], 3)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	u, _ := s.GetUserByID(ctx, ids[0])
	if u.FailedAttempts != 1 {
		t.Fatalf("expected committed increment, got %d", u.FailedAttempts)
	}
}

func TestDeleteUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids := seed(t, s, codify.User{Username: "alice", Email: "alice@x.com"})

	if err := s.DeleteUser(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, ids[0]); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on second delete, got %v", err)
	}
}
