package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/clock"
	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/quote"
)

var fakePNG = append([]byte("\x89PNG\r\n\x1a\n"), 0, 1, 2, 3)

func record() *quote.Record {
	t0 := time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC)
	return &quote.Record{
		Ticker:        "AAPL",
		Price:         187,
		PreviousClose: 188,
		Points: []quote.Point{
			{Time: t0, Close: 188.2},
			{Time: t0.Add(5 * time.Minute), Close: 187},
		},
	}
}

func TestBuildDefinition(t *testing.T) {
	def := buildDefinition(record())
	assert.Equal(t, "line", def.Type)
	assert.Equal(t, []string{"14:30", "14:35"}, def.Data.Labels)
	require.Len(t, def.Data.Datasets, 1)
	assert.Equal(t, "#dc2626", def.Data.Datasets[0].BorderColor, "down day is red")

	flat := buildDefinition(&quote.Record{Ticker: "MSFT", Price: 410, PreviousClose: 400})
	assert.Equal(t, []float64{400, 410}, flat.Data.Datasets[0].Data)
	assert.Equal(t, "#16a34a", flat.Data.Datasets[0].BorderColor)
}

func TestHTTPRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/chart", r.URL.Path)

		var req renderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "png", req.Format)
		assert.Equal(t, 640, req.Width)
		assert.Equal(t, 400, req.Height, "default height")
		assert.Equal(t, "AAPL", req.Chart.Data.Datasets[0].Label)

		w.Header().Set("Content-Type", "image/png")
		w.Write(fakePNG)
	}))
	defer srv.Close()

	r := NewHTTPRenderer(config.ChartConfig{RendererURL: srv.URL + "/", Width: 640}, srv.Client())
	img, err := r.Render(context.Background(), record())
	require.NoError(t, err)
	assert.Equal(t, fakePNG, img)
}

func TestHTTPRendererErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad chart", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := NewHTTPRenderer(config.ChartConfig{RendererURL: srv.URL}, srv.Client()).Render(context.Background(), record())
		assert.True(t, errors.Is(err, errors.ErrTransient))
	})

	t.Run("not png", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<svg/>"))
		}))
		defer srv.Close()

		_, err := NewHTTPRenderer(config.ChartConfig{RendererURL: srv.URL}, srv.Client()).Render(context.Background(), record())
		assert.ErrorContains(t, err, "non-png")
	})
}

func TestServiceCaches(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC))
	renders := 0
	svc := NewService(RendererFunc(func(ctx context.Context, rec *quote.Record) ([]byte, error) {
		renders++
		return fakePNG, nil
	}), cache.NewChartCache[[]byte](clk, time.UTC), nil)

	img, key, err := svc.Get(context.Background(), record())
	require.NoError(t, err)
	assert.Equal(t, "chart_AAPL_2024-01-01", key)
	assert.Equal(t, fakePNG, img)

	_, key2, err := svc.Get(context.Background(), record())
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	assert.Equal(t, 1, renders)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "brk.b.png", Filename(" BRK.B"))
}
