package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arturkam25/Codify"
	"github.com/arturkam25/Codify/store/memstore"
)

func newEngine(t *testing.T) *codify.Engine {
	t.Helper()

	cfg := codify.DefaultConfig()
	cfg.Password.BcryptCost = 4
	cfg.Session.SigningKey = []byte(strings.Repeat("m", 32))
	e, err := codify.New().WithConfig(cfg).WithStore(memstore.New()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func login(t *testing.T, e *codify.Engine, username, email string) string {
	t.Helper()

	ctx := context.Background()
	if _, err := e.Register(ctx, username, "Abcd123!", email); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := e.Authenticate(ctx, username, "Abcd123!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return res.Token
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireSession(t *testing.T) {
	e := newEngine(t)
	token := login(t, e, "alice", "a@x.com")

	var seen codify.Principal
	h := RequireSession(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
	}))

	if rr := serve(h, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rr.Code)
	}
	if rr := serve(h, "garbage"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rr.Code)
	}
	if rr := serve(h, token); rr.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rr.Code)
	}
	if seen.Username != "alice" {
		t.Fatalf("principal not injected: %+v", seen)
	}
}

func TestRequireAdmin(t *testing.T) {
	e := newEngine(t)
	adminToken := login(t, e, "root", "root@x.com")
	userToken := login(t, e, "bob", "b@x.com")

	h := RequireAdmin(e)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	if rr := serve(h, userToken); rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rr.Code)
	}
	if rr := serve(h, adminToken); rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rr.Code)
	}
	if rr := serve(RequireAdmin(nil)(h), adminToken); rr.Code != http.StatusUnauthorized {
		t.Fatalf("nil engine: expected 401, got %d", rr.Code)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	var ctx context.Context
	h := ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	h.ServeHTTP(httptest.NewRecorder(), req)

	sink := codify.NewChannelSink(4)
	cfg := codify.DefaultConfig()
	cfg.Password.BcryptCost = 4
	cfg.Session.SigningKey = []byte(strings.Repeat("m", 32))
	cfg.Audit.Enabled = true
	e, err := codify.New().WithConfig(cfg).WithStore(memstore.New()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, _ = e.Authenticate(ctx, "nobody", "x")
	e.Close()

	ev := <-sink.Events()
	if ev.IP != "198.51.100.4" {
		t.Fatalf("expected IP without port, got %q", ev.IP)
	}
}
