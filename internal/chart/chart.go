// Package chart renders intraday price charts as PNG images.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/cache"
	"github.com/greenghost107/TradersMind-chartBot/internal/config"
	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
	"github.com/greenghost107/TradersMind-chartBot/internal/quote"
)

// Renderer turns a quote into image bytes.
type Renderer interface {
	Render(ctx context.Context, rec *quote.Record) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, rec *quote.Record) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, rec *quote.Record) ([]byte, error) {
	return f(ctx, rec)
}

// HTTPRenderer posts a chart definition to a QuickChart-compatible
// endpoint and returns the PNG it answers with.
type HTTPRenderer struct {
	url    string
	width  int
	height int
	client *http.Client
}

// NewHTTPRenderer creates a renderer from config.
func NewHTTPRenderer(cfg config.ChartConfig, client *http.Client) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	r := &HTTPRenderer{
		url:    strings.TrimRight(cfg.RendererURL, "/"),
		width:  cfg.Width,
		height: cfg.Height,
		client: client,
	}
	if r.url == "" {
		r.url = "https://quickchart.io"
	}
	if r.width <= 0 {
		r.width = 800
	}
	if r.height <= 0 {
		r.height = 400
	}
	return r
}

type renderRequest struct {
	Chart           definition `json:"chart"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Format          string     `json:"format"`
	BackgroundColor string     `json:"backgroundColor"`
}

type definition struct {
	Type    string         `json:"type"`
	Data    data           `json:"data"`
	Options map[string]any `json:"options,omitempty"`
}

type data struct {
	Labels   []string  `json:"labels"`
	Datasets []dataset `json:"datasets"`
}

type dataset struct {
	Label       string    `json:"label"`
	Data        []float64 `json:"data"`
	BorderColor string    `json:"borderColor"`
	Fill        bool      `json:"fill"`
	PointRadius int       `json:"pointRadius"`
}

// buildDefinition builds the line chart for rec. A record without an intraday
// series is drawn as previous close to current price.
func buildDefinition(rec *quote.Record) definition {
	var labels []string
	var values []float64
	if len(rec.Points) > 0 {
		for _, p := range rec.Points {
			labels = append(labels, p.Time.Format("15:04"))
			values = append(values, p.Close)
		}
	} else {
		labels = []string{"prev close", "now"}
		values = []float64{rec.PreviousClose, rec.Price}
	}

	color := "#16a34a"
	if rec.Change() < 0 {
		color = "#dc2626"
	}
	return definition{
		Type: "line",
		Data: data{
			Labels: labels,
			Datasets: []dataset{{
				Label:       rec.Ticker,
				Data:        values,
				BorderColor: color,
				PointRadius: 0,
			}},
		},
		Options: map[string]any{
			"title":  map[string]any{"display": true, "text": rec.Summary()},
			"legend": map[string]any{"display": false},
		},
	}
}

// Render requests a PNG for rec.
func (r *HTTPRenderer) Render(ctx context.Context, rec *quote.Record) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		Chart:           buildDefinition(rec),
		Width:           r.width,
		Height:          r.height,
		Format:          "png",
		BackgroundColor: "white",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.url+"/chart", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewTransient("chart renderer", err)
	}
	defer resp.Body.Close()

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransient("read chart", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransient("render chart "+rec.Ticker,
			fmt.Errorf("status %d: %.200s", resp.StatusCode, img))
	}
	if !bytes.HasPrefix(img, pngMagic) {
		return nil, fmt.Errorf("chart renderer returned non-png content (%s)", resp.Header.Get("Content-Type"))
	}
	return img, nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// Service answers chart requests from the chart day cache.
type Service struct {
	renderer Renderer
	cache    *cache.DayCache[[]byte]
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(r Renderer, c *cache.DayCache[[]byte], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{renderer: r, cache: c, logger: logger}
}

// Get returns today's chart for rec's ticker and its cache key, rendering
// on a miss.
func (s *Service) Get(ctx context.Context, rec *quote.Record) ([]byte, string, error) {
	if img, ok := s.cache.Get(rec.Ticker); ok {
		return img, s.cache.Key(rec.Ticker), nil
	}
	img, err := s.renderer.Render(ctx, rec)
	if err != nil {
		return nil, "", err
	}
	key := s.cache.Put(rec.Ticker, img)
	s.logger.Debug("chart: cached", "ticker", rec.Ticker, "bytes", len(img), "key", key)
	return img, key, nil
}

// Filename is the attachment name used for a ticker's chart.
func Filename(ticker string) string {
	return strings.ToLower(cache.NormalizeTicker(ticker)) + ".png"
}
