package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/taskforge/taskforge/auth"
	"github.com/taskforge/taskforge/comms"
	"github.com/taskforge/taskforge/config"
	"github.com/taskforge/taskforge/internal/sqldb"
	"github.com/taskforge/taskforge/server/sse"
	"github.com/taskforge/taskforge/task"
	"github.com/taskforge/taskforge/webhook"
)

type testEnv struct {
	srv   *Server
	tasks *task.Service
	bus   *comms.InMemoryBus
	cfg   config.Config
}

// fakeGitHub answers the token and user endpoints for login tests.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") == "bad" {
			writeJSON(w, http.StatusOK, map[string]string{"error": "bad_verification_code", "error_description": "code expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "gho_ok"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, auth.Profile{ID: 7, Login: "octocat", Name: "Mona", AvatarURL: "https://example.com/a.png"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := *config.DefaultConfig()
	cfg.Server.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.Database.DSN = filepath.Join(t.TempDir(), "server.db")
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		t.Fatalf("sqldb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := comms.NewInMemoryBus()
	svc := task.NewService(task.NewSQLStore(db), bus, cfg.Webhook.CloseBonus, logger)

	gh := fakeGitHub(t)
	client := auth.NewGitHubClient(auth.GitHubConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8000/auth/github/callback",
		AuthorizeURL: gh.URL + "/login/oauth/authorize",
		TokenURL:     gh.URL + "/login/oauth/access_token",
		APIURL:       gh.URL,
	})
	gate, err := auth.NewGate(client, auth.NewSQLSessionStore(db, cfg.Auth.MaxSessions), "test-secret", cfg.Auth.SessionTTL, logger)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	hub := sse.NewHub(logger)
	t.Cleanup(hub.Attach(bus))

	srv := New(cfg, Deps{
		Tasks:   svc,
		Gate:    gate,
		Webhook: webhook.NewProcessor(svc, webhook.Config{ProtectedBranches: cfg.Webhook.ProtectedBranches}, logger),
		Hub:     hub,
		Health:  db.PingContext,
	}, "test", logger)
	return &testEnv{srv: srv, tasks: svc, bus: bus, cfg: cfg}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withHeader(k, v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}
