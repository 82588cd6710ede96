package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/server"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(server.StatusResponse{
			Status: retention.Status{
				Running:      true,
				Interval:     time.Hour,
				Retention:    26 * time.Hour,
				TotalTracked: 2,
				ByKind:       map[tracking.Kind]int{tracking.KindButtonPrompt: 2},
				Ticks:        3,
			},
			Threads: 1,
			Version: "v1.2.3 (abc)",
		})
	})
	r.Post("/api/cleanup", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(retention.TickSummary{TickID: "01TICK", Expired: 2, Deleted: 1, Errors: 1})
	})
	r.Get("/api/tracked", func(w http.ResponseWriter, r *http.Request) {
		all := []tracking.Artifact{
			{ID: "p1", Kind: tracking.KindButtonPrompt, Placement: tracking.Placement{ConversationID: "c1"}, Tickers: []string{"AAPL"}, CreatedAt: created},
			{ID: "m1", Kind: tracking.KindChartResponse, Placement: tracking.Placement{ConversationID: "c1", ThreadID: "t1"}, Ticker: "AAPL", CreatedAt: created},
		}
		if k := r.URL.Query().Get("kind"); k != "" {
			var out []tracking.Artifact
			for _, a := range all {
				if string(a.Kind) == k {
					out = append(out, a)
				}
			}
			all = out
		}
		json.NewEncoder(w).Encode(all)
	})
	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "run history needs a database"})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		outputFormat = "text"
		trackedKind = ""
		serverURL = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chartbot dev")
}

func TestStatusJSON(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "status", "--server", api.URL, "-o", "json")
	require.NoError(t, err)

	var st server.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.TotalTracked)
	assert.Equal(t, 1, st.Threads)
}

func TestStatusText(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "status", "--server", api.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "chartbot v1.2.3")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "button_prompt")
	assert.Contains(t, out, "26h0m0s")
}

func TestCleanupYAML(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "cleanup", "--server", api.URL, "-o", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "01TICK", doc["tick_id"])
	assert.Equal(t, 1, doc["deleted"])
}

func TestCleanupText(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "cleanup", "--server", api.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "cleanup finished with 1 errors")
	assert.Contains(t, out, "01TICK")
}

func TestCleanupWaitsPastDefaultTimeout(t *testing.T) {
	prev := defaultTimeout
	defaultTimeout = 50 * time.Millisecond
	defer func() { defaultTimeout = prev }()

	r := chi.NewRouter()
	r.Post("/api/cleanup", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(retention.TickSummary{TickID: "01SLOW"})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(server.StatusResponse{})
	})
	slow := httptest.NewServer(r)
	defer slow.Close()

	out, err := run(t, "cleanup", "--server", slow.URL, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "01SLOW")

	_, err = run(t, "status", "--server", slow.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "other commands keep the default timeout")
}

func TestTrackedTree(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "tracked", "--server", api.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "# c1")
	assert.Contains(t, out, "prompt AAPL")
	assert.Contains(t, out, "thread t1")
	assert.Contains(t, out, "chart AAPL")
	assert.Contains(t, out, "2 tracked")
}

func TestTrackedKindFilter(t *testing.T) {
	api := fakeAPI(t)
	out, err := run(t, "tracked", "--server", api.URL, "--kind", "chart_response", "-o", "json")
	require.NoError(t, err)

	var artifacts []tracking.Artifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifacts))
	require.Len(t, artifacts, 1)
	assert.Equal(t, "m1", artifacts[0].ID)
}

func TestRunsSurfacesAPIError(t *testing.T) {
	api := fakeAPI(t)
	_, err := run(t, "runs", "--server", api.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run history needs a database")
}

func TestUnknownOutputFormat(t *testing.T) {
	api := fakeAPI(t)
	_, err := run(t, "status", "--server", api.URL, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestAPIClientURL(t *testing.T) {
	serverURL = "127.0.0.1:9999/"
	defer func() { serverURL = "" }()
	c := newAPIClient()
	assert.Equal(t, "http://127.0.0.1:9999", c.serverURL)
}

func TestAPIClientHealthy(t *testing.T) {
	api := fakeAPI(t)
	serverURL = api.URL
	defer func() { serverURL = "" }()
	assert.True(t, newAPIClient().Healthy(context.Background()))

	serverURL = "http://127.0.0.1:1"
	assert.False(t, newAPIClient().Healthy(context.Background()))
}

func TestRenderRuns(t *testing.T) {
	out := renderRuns([]store.Run{{TickID: "01A", StartedAt: time.Now(), Deleted: 3, ThreadsRemoved: 1, OrphansRemoved: 1}})
	assert.Contains(t, out, "TICK")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "01A")
	assert.Contains(t, renderRuns(nil), "No runs recorded")
}

func TestRenderTrackedEmpty(t *testing.T) {
	assert.Contains(t, renderTracked(nil, time.Now()), "Nothing tracked")
}
