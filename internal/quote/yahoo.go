package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/greenghost107/TradersMind-chartBot/internal/errors"
)

// Yahoo reads the public chart API. No key is needed.
type Yahoo struct {
	url    string
	client *http.Client
}

// NewYahoo creates a Yahoo provider against baseURL.
func NewYahoo(baseURL string, client *http.Client) *Yahoo {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Yahoo{url: baseURL, client: client}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
				RegularMarketHigh  float64 `json:"regularMarketDayHigh"`
				RegularMarketLow   float64 `json:"regularMarketDayLow"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch requests today's intraday chart for ticker.
func (y *Yahoo) Fetch(ctx context.Context, ticker string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=5m",
		y.url, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chartbot/1.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, errors.NewTransient("yahoo api", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransient("read yahoo response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("yahoo", ticker, resp.StatusCode, body)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("decode yahoo response: %w", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, errors.NewNotFound("quote", ticker)
		}
		return nil, errors.NewTransient("yahoo quote "+ticker, fmt.Errorf("%s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, errors.NewNotFound("quote", ticker)
	}

	res := chart.Chart.Result[0]
	prev := res.Meta.ChartPreviousClose
	if prev == 0 {
		prev = res.Meta.PreviousClose
	}
	rec := &Record{
		Ticker:        ticker,
		Provider:      y.Name(),
		Currency:      res.Meta.Currency,
		Price:         res.Meta.RegularMarketPrice,
		PreviousClose: prev,
		High:          res.Meta.RegularMarketHigh,
		Low:           res.Meta.RegularMarketLow,
		FetchedAt:     time.Now(),
	}
	if len(res.Indicators.Quote) > 0 {
		q := res.Indicators.Quote[0]
		for i, ts := range res.Timestamp {
			if i >= len(q.Close) || q.Close[i] == nil {
				continue
			}
			rec.Points = append(rec.Points, Point{Time: time.Unix(ts, 0).UTC(), Close: *q.Close[i]})
		}
		if len(q.Open) > 0 && q.Open[0] != nil {
			rec.Open = *q.Open[0]
		}
	}
	return rec, nil
}
