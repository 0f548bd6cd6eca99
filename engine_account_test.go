package codify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arturkam25/Codify"
)

func TestAdminOperationsRequireActiveAdmin(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")
	bobLogin := mustLogin(t, e, "bob", "Bobpw12!")

	forged := bobLogin.Principal
	forged.IsAdmin = true

	if err := e.LockUser(ctx, forged, bob.UserID); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("LockUser: expected ErrAdminRequired, got %v", err)
	}
	if err := e.DeleteUser(ctx, forged, bob.UserID); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("DeleteUser: expected ErrAdminRequired, got %v", err)
	}
	if _, err := e.ListUsers(ctx, forged); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("ListUsers: expected ErrAdminRequired, got %v", err)
	}
	if err := e.RequireAdmin(ctx, codify.Principal{}); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("RequireAdmin: expected ErrAdminRequired, got %v", err)
	}
}

func TestFirstAdminIsProtected(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	second, err := e.CreateUser(ctx, root, codify.CreateUserRequest{
		Username: "ops",
		Password: "Opspw12!",
		Email:    "ops@x.com",
		IsAdmin:  true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ops := mustLogin(t, e, "ops", "Opspw12!").Principal

	for name, op := range map[string]func() error{
		"disable": func() error {
			return e.UpdateUser(ctx, ops, root.ID, codify.UpdateUserRequest{Disabled: ptr(true)})
		},
		"demote": func() error {
			return e.UpdateUser(ctx, ops, root.ID, codify.UpdateUserRequest{IsAdmin: ptr(false)})
		},
		"demote with other fields": func() error {
			return e.UpdateUser(ctx, ops, root.ID, codify.UpdateUserRequest{Role: ptr("owner"), IsAdmin: ptr(false)})
		},
		"lock":   func() error { return e.LockUser(ctx, ops, root.ID) },
		"delete": func() error { return e.DeleteUser(ctx, ops, root.ID) },
		"self demote": func() error {
			return e.UpdateUser(ctx, root, root.ID, codify.UpdateUserRequest{IsAdmin: ptr(false)})
		},
	} {
		if err := op(); !errors.Is(err, codify.ErrProtectedAdmin) {
			t.Fatalf("%s: expected ErrProtectedAdmin, got %v", name, err)
		}
	}

	u := mustGet(t, store, root.ID)
	if !u.IsAdmin || u.Disabled || u.Role != codify.RoleAdmin {
		t.Fatalf("first admin changed: %+v", u)
	}

	// The second administrator has no such protection.
	if err := e.UpdateUser(ctx, root, second.UserID, codify.UpdateUserRequest{IsAdmin: ptr(false)}); err != nil {
		t.Fatalf("demote second admin: %v", err)
	}
	if got := e.MetricsSnapshot().Counters[codify.MetricProtectedAdminRejected]; got != 6 {
		t.Fatalf("expected 6 protected rejections, got %d", got)
	}
}

func TestUpdateUser(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")

	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Username: ptr("robert")}); !errors.Is(err, codify.ErrUsernameImmutable) {
		t.Fatalf("expected ErrUsernameImmutable, got %v", err)
	}
	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Username: ptr("bob")}); err != nil {
		t.Fatalf("unchanged username should be accepted: %v", err)
	}
	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Email: ptr("broken")}); !errors.Is(err, codify.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Password: ptr("weak")}); !errors.Is(err, codify.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Email: ptr("root@x.com")}); !errors.Is(err, codify.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if err := e.UpdateUser(ctx, root, 404, codify.UpdateUserRequest{Role: ptr("x")}); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{
		Role:     ptr(" editor "),
		Email:    ptr("Robert@X.com"),
		Password: ptr("Newpw12!"),
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	u := mustGet(t, store, bob.UserID)
	if u.Role != "editor" || u.Email != "robert@x.com" || u.Username != "bob" {
		t.Fatalf("unexpected record %+v", u)
	}
	mustLogin(t, e, "bob", "Newpw12!")
}

func TestLockAndUnlock(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")

	if err := e.LockUser(ctx, root, bob.UserID); err != nil {
		t.Fatalf("LockUser: %v", err)
	}
	u := mustGet(t, store, bob.UserID)
	if !u.Disabled || u.FailedAttempts != 3 {
		t.Fatalf("expected locked account, got %+v", u)
	}
	if _, err := e.Authenticate(ctx, "bob", "Bobpw12!"); !errors.Is(err, codify.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	if err := e.UnlockUser(ctx, root, bob.UserID); err != nil {
		t.Fatalf("UnlockUser: %v", err)
	}
	u = mustGet(t, store, bob.UserID)
	if u.Disabled || u.FailedAttempts != 0 {
		t.Fatalf("expected unlocked account, got %+v", u)
	}
	mustLogin(t, e, "bob", "Bobpw12!")

	if err := e.UnlockUser(ctx, root, 404); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReenableClearsCounter(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")
	for i := 0; i < 3; i++ {
		_, _ = e.Authenticate(ctx, "bob", "wrong")
	}

	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Disabled: ptr(false)}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	u := mustGet(t, store, bob.UserID)
	if u.Disabled || u.FailedAttempts != 0 {
		t.Fatalf("expected re-enabled account with cleared counter, got %+v", u)
	}
}

func TestDeleteUser(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")

	if err := e.DeleteUser(ctx, root, bob.UserID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := store.GetUserByID(ctx, bob.UserID); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
	if err := e.DeleteUser(ctx, root, bob.UserID); !errors.Is(err, codify.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListUsersOrdersAdminsFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, e, "aaron", "Aaronp1!", "aaron@x.com")
	root := setupAdmin(t, e)
	if _, err := e.CreateUser(ctx, root, codify.CreateUserRequest{
		Username: "ops", Password: "Opspw12!", Email: "ops@x.com", IsAdmin: true,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	list, err := e.ListUsers(ctx, root)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	var names []string
	for _, u := range list {
		names = append(names, u.Username)
	}
	want := []string{"root", "ops", "aaron"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}

	emergency, err := e.EmergencyListUsers(ctx)
	if err != nil || len(emergency) != 3 {
		t.Fatalf("EmergencyListUsers: %v %v", emergency, err)
	}
}

func TestRegenerateRecoveryCode(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")
	carol := mustRegister(t, e, "carol", "Carol12!", "c@x.com")
	bobPrincipal := mustLogin(t, e, "bob", "Bobpw12!").Principal

	code, err := e.RegenerateRecoveryCode(ctx, bobPrincipal, bob.UserID)
	if err != nil {
		t.Fatalf("self regenerate: %v", err)
	}
	u := mustGet(t, store, bob.UserID)
	if code == bob.RecoveryCode || u.RecoveryCode != code || code == u.LicenseKey {
		t.Fatalf("unexpected regenerated code %q for %+v", code, u)
	}

	if _, err := e.RegenerateRecoveryCode(ctx, bobPrincipal, carol.UserID); !errors.Is(err, codify.ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := e.RegenerateRecoveryCode(ctx, root, carol.UserID); err != nil {
		t.Fatalf("admin regenerate: %v", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestUpdateUserValidatesTrimmedPassword(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	root := setupAdmin(t, e)
	bob := mustRegister(t, e, "bob", "Bobpw12!", "b@x.com")

	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Password: ptr("Ab1!    ")}); !errors.Is(err, codify.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	mustLogin(t, e, "bob", "Bobpw12!")

	if err := e.UpdateUser(ctx, root, bob.UserID, codify.UpdateUserRequest{Password: ptr(" Newpw12! ")}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	mustLogin(t, e, "bob", "Newpw12!")
}
