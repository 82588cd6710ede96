package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/bot"
	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// fakeEvents records events and answers with canned results.
type fakeEvents struct {
	messages []bot.MessageEvent
	buttons  []bot.ButtonEvent
	msg      *platform.Message
	reply    *bot.Reply
	err      error
}

func (f *fakeEvents) HandleMessage(ctx context.Context, ev bot.MessageEvent) (*platform.Message, error) {
	f.messages = append(f.messages, ev)
	return f.msg, f.err
}

func (f *fakeEvents) HandleButton(ctx context.Context, ev bot.ButtonEvent) (*bot.Reply, error) {
	f.buttons = append(f.buttons, ev)
	return f.reply, f.err
}

type testEnv struct {
	srv      *Server
	clock    *clock.FakeClock
	platform *platform.Mock
	registry *tracking.Registry
	events   *fakeEvents
	db       *store.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p := platform.NewMock(clk)
	p.AddConversation("c1")
	reg := tracking.NewRegistry(tracking.WithClock(clk), tracking.WithLogger(logger))
	dir := threads.New(p, threads.Config{}, clk, logger)
	t.Cleanup(dir.Close)

	eng := retention.New(retention.Deps{
		Registry: reg,
		Threads:  dir,
		Platform: p,
		Caches:   []cache.Releaser{cache.NewQuoteCache[string](clk, time.UTC)},
		Clock:    clk,
		Logger:   logger,
	}, retention.Options{Conversations: []string{"c1"}})

	events := &fakeEvents{}
	srv := New(Deps{Engine: eng, Registry: reg, Threads: dir, Events: events, DB: db, Logger: logger}, "test-version")
	return &testEnv{srv: srv, clock: clk, platform: p, registry: reg, events: events, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = stringReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	decode(t, w, &body)

	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
	if body["running"] != false {
		t.Errorf("running = %v, want false", body["running"])
	}
}

func TestHealthWithoutDB(t *testing.T) {
	env := newTestEnv(t)
	env.srv.db = nil

	var body map[string]any
	decode(t, env.do(t, "GET", "/api/health", ""), &body)
	if body["db"] != false {
		t.Errorf("db = %v, want false", body["db"])
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, "GET", "/api/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
