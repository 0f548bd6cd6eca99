package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arturkam25/Codify"
	"github.com/arturkam25/Codify/store/sqlstore"
)

func seedDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "codify.db")
	ctx := context.Background()

	cfg := sqlstore.DefaultConfig()
	cfg.DSN = path
	store, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	engineCfg := codify.DefaultConfig()
	engineCfg.Password.BcryptCost = 4
	engine, err := codify.New().WithConfig(engineCfg).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	for _, u := range []struct{ name, email string }{{"root", "root@x.com"}, {"bob", "b@x.com"}} {
		if _, err := engine.Register(ctx, u.name, "Abcd123!", u.email); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if _, err := engine.Authenticate(ctx, "root", "Abcd123!"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = engine.Authenticate(ctx, "bob", "wrong")
	}
	return path
}

func TestListShowsAccounts(t *testing.T) {
	db := seedDatabase(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-dsn", db, "list"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got:\n%s", stdout.String())
	}
	if !strings.Contains(lines[1], "root") || !strings.Contains(lines[1], "yes") {
		t.Fatalf("expected root first as admin, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "bob") || !strings.Contains(lines[2], "locked (3 failed)") {
		t.Fatalf("expected bob locked, got %q", lines[2])
	}
}

func TestResetWithArgument(t *testing.T) {
	db := seedDatabase(t)
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	if code := run(ctx, []string{"-dsn", db, "reset", "bob", "weak"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected policy failure, got exit %d", code)
	}
	if !strings.Contains(stderr.String(), "at least 8 characters") {
		t.Fatalf("expected policy feedback, got %q", stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := run(ctx, []string{"-dsn", db, "reset", "bob", "Newpw12!"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}

	stdout.Reset()
	if code := run(ctx, []string{"-dsn", db, "list"}, &stdout, &stderr); code != 0 {
		t.Fatalf("list exit %d", code)
	}
	if !strings.Contains(stdout.String(), "active (0 failed)") || strings.Contains(stdout.String(), "locked") {
		t.Fatalf("expected bob unlocked, got:\n%s", stdout.String())
	}
}

func TestResetPrompts(t *testing.T) {
	db := seedDatabase(t)
	ctx := context.Background()

	answers := [][]byte{[]byte("Newpw12!"), []byte("Newpw12?")}
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}

	var stdout, stderr bytes.Buffer
	if code := run(ctx, []string{"-dsn", db, "reset", "bob"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected mismatch failure, got exit %d", code)
	}
	if !strings.Contains(stderr.String(), "Passwords do not match.") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}

	answers = [][]byte{[]byte("Newpw12!"), []byte("Newpw12!")}
	stdout.Reset()
	stderr.Reset()
	if code := run(ctx, []string{"-dsn", db, "reset", "bob"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Password for bob reset") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestUsageErrors(t *testing.T) {
	db := seedDatabase(t)
	ctx := context.Background()

	for _, args := range [][]string{
		{},
		{"-dsn", db, "frobnicate"},
		{"-dsn", db, "reset"},
		{"-dsn", db, "list", "extra"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(ctx, args, &stdout, &stderr); code != 2 {
			t.Fatalf("args %v: expected exit 2, got %d", args, code)
		}
	}

	var stdout, stderr bytes.Buffer
	if code := run(ctx, []string{"-dsn", db, "reset", "nobody", "Newpw12!"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for unknown user, got %d", code)
	}
}
