package codify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arturkam25/Codify"
)

func TestParseSessionRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	res := mustLogin(t, e, "root", "Rootpw1!")

	p, err := e.ParseSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if p.ID != root.ID || p.Username != "root" || !p.IsAdmin {
		t.Fatalf("unexpected principal %+v", p)
	}
	if err := e.RequireAdmin(ctx, p); err != nil {
		t.Fatalf("RequireAdmin: %v", err)
	}
}

func TestParseSessionRejects(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")
	carol := mustRegister(t, e, "carol", "Carol12!", "c@x.com")
	bobToken := mustLogin(t, e, "bob", "Bobpw12!").Token
	carolToken := mustLogin(t, e, "carol", "Carol12!").Token

	if _, err := e.ParseSession(ctx, "not.a.token"); !errors.Is(err, codify.ErrSessionInvalid) {
		t.Fatalf("garbage: expected ErrSessionInvalid, got %v", err)
	}

	if err := e.LockUser(ctx, root, bob.UserID); err != nil {
		t.Fatalf("LockUser: %v", err)
	}
	if _, err := e.ParseSession(ctx, bobToken); !errors.Is(err, codify.ErrSessionInvalid) {
		t.Fatalf("disabled: expected ErrSessionInvalid, got %v", err)
	}

	if err := e.DeleteUser(ctx, root, carol.UserID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := e.ParseSession(ctx, carolToken); !errors.Is(err, codify.ErrSessionInvalid) {
		t.Fatalf("deleted: expected ErrSessionInvalid, got %v", err)
	}

	if got := e.MetricsSnapshot().Counters[codify.MetricSessionRejected]; got != 3 {
		t.Fatalf("expected 3 rejected sessions, got %d", got)
	}
}

func TestParseSessionReflectsDemotion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	ops, err := e.CreateUser(ctx, root, codify.CreateUserRequest{
		Username: "ops", Password: "Opspw12!", Email: "ops@x.com", IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token := mustLogin(t, e, "ops", "Opspw12!").Token

	if err := e.UpdateUser(ctx, root, ops.UserID, codify.UpdateUserRequest{IsAdmin: ptr(false)}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	p, err := e.ParseSession(ctx, token)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if p.IsAdmin {
		t.Fatal("demoted account still reported as admin")
	}
	if err := e.RequireAdmin(ctx, p); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
}

func TestSessionsFromAnotherKeyAreRejected(t *testing.T) {
	e1, _ := newTestEngine(t)
	e2, _ := newTestEngine(t, testEngineOptions{
		mutate: func(c *codify.Config) { c.Session.SigningKey = []byte("another-signing-key-with-32-bytes!") },
	})

	mustRegister(t, e1, "alice", "Abcd123!", "a@x.com")
	mustRegister(t, e2, "alice", "Abcd123!", "a@x.com")
	token := mustLogin(t, e1, "alice", "Abcd123!").Token

	if _, err := e2.ParseSession(context.Background(), token); !errors.Is(err, codify.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}
