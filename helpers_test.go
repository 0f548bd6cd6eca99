package codify_test

import (
	"context"
	"strings"
	"testing"

	"github.com/arturkam25/Codify"
	"github.com/arturkam25/Codify/store/memstore"
)

const testBcryptCost = 4

func testConfig() codify.Config {
	cfg := codify.DefaultConfig()
	cfg.Password.BcryptCost = testBcryptCost
	cfg.Session.SigningKey = []byte(strings.Repeat("s", 32))
	cfg.Metrics.Enabled = true
	return cfg
}

type testEngineOptions struct {
	mutate func(*codify.Config)
	build  func(*codify.Builder)
}

func newTestEngine(t testing.TB, opts ...testEngineOptions) (*codify.Engine, *memstore.Store) {
	t.Helper()

	cfg := testConfig()
	store := memstore.New()
	b := codify.New().WithStore(store)
	for _, o := range opts {
		if o.mutate != nil {
			o.mutate(&cfg)
		}
		if o.build != nil {
			o.build(b)
		}
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

func mustRegister(t testing.TB, e *codify.Engine, username, pw, email string) *codify.Registration {
	t.Helper()

	reg, err := e.Register(context.Background(), username, pw, email)
	if err != nil {
		t.Fatalf("Register(%q): %v", username, err)
	}
	return reg
}

func mustLogin(t testing.TB, e *codify.Engine, username, pw string) *codify.LoginResult {
	t.Helper()

	res, err := e.Authenticate(context.Background(), username, pw)
	if err != nil {
		t.Fatalf("Authenticate(%q): %v", username, err)
	}
	return res
}

func mustGet(t testing.TB, s *memstore.Store, id int64) *codify.User {
	t.Helper()

	u, err := s.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID(%d): %v", id, err)
	}
	return u
}

// setupAdmin registers root and logs it in so it becomes the first administrator.
func setupAdmin(t *testing.T, e *codify.Engine) codify.Principal {
	t.Helper()

	mustRegister(t, e, "root", "Rootpw1!", "root@x.com")
	res := mustLogin(t, e, "root", "Rootpw1!")
	if !res.Principal.IsAdmin {
		t.Fatal("expected root to be promoted")
	}
	return res.Principal
}

func drainAudit(sink *codify.ChannelSink) []codify.AuditEvent {
	var out []codify.AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []codify.AuditEvent, eventType string, success bool) bool {
	for _, ev := range events {
		if ev.EventType == eventType && ev.Success == success {
			return true
		}
	}
	return false
}
