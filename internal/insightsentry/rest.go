package insightsentry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/ratelimit"
	"realtime-chart-engine/internal/types"
)

const (
	DefaultRestURL = "https://api.insightsentry.com"
	// MaxDataPoints is the largest series the upstream plan returns in one call.
	MaxDataPoints = 20000
)

// SeriesRequest describes one historical series fetch.
type SeriesRequest struct {
	Symbol     string
	Timeframe  types.Timeframe
	DataPoints int
	Extended   bool
}

// RestClient calls the upstream REST API. Every call first takes a token from limiter.
type RestClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	limiter *ratelimit.Limiter
	logger  logger.Interface
}

func NewRestClient(baseURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter, log logger.Interface) *RestClient {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RestClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  log,
	}
}

// FetchSeries returns the bars for req, oldest first.
func (c *RestClient) FetchSeries(ctx context.Context, req SeriesRequest) ([]types.Bar, error) {
	if req.Symbol == "" {
		return nil, apperr.Validation("symbol required")
	}
	barType, interval, ok := BarParams(req.Timeframe)
	if !ok {
		return nil, apperr.Validation("unknown timeframe %q", req.Timeframe)
	}

	q := url.Values{}
	q.Set("bar_type", barType)
	q.Set("bar_interval", strconv.Itoa(interval))
	q.Set("data_points", strconv.Itoa(req.DataPoints))
	q.Set("extended", strconv.FormatBool(req.Extended))

	body, err := c.get(ctx, "/v3/symbols/"+url.PathEscape(req.Symbol)+"/series", q)
	if err != nil {
		return nil, err
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Parse(err, "decode series response")
	}
	if resp.Series == nil {
		return nil, apperr.Parse(nil, "invalid response format: 'series' key missing")
	}

	bars := toBars(*resp.Series)
	c.logger.Info("fetched series",
		logger.NewField("symbol", req.Symbol),
		logger.NewField("timeframe", req.Timeframe),
		logger.NewField("count", len(bars)),
	)
	return bars, nil
}

// Quote returns the raw real-time quote payload for symbol.
func (c *RestClient) Quote(ctx context.Context, symbol string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("codes", symbol)
	return c.getJSON(ctx, "/v3/symbols/quotes", q)
}

// SymbolInfo returns the raw symbol description payload.
func (c *RestClient) SymbolInfo(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v3/symbols/"+url.PathEscape(symbol)+"/info", nil)
}

func (c *RestClient) getJSON(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, apperr.Parse(nil, "invalid JSON from %s", path)
	}
	return json.RawMessage(body), nil
}

func (c *RestClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, apperr.Upstream(err, "rate limiter wait")
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, apperr.Internal("invalid base url %q", c.baseURL)
	}
	// path arrives escaped; keep both forms so a %2F inside a symbol survives.
	if u.Path, err = url.PathUnescape(path); err != nil {
		return nil, apperr.Internal("invalid request path %q", path)
	}
	u.RawPath = path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Upstream(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("upstream request", logger.NewField("path", path), logger.NewField("query", u.RawQuery))
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "request %s", path)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "read %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(fmt.Errorf("http %d: %s", resp.StatusCode, truncate(b, 256)), "request %s", path)
	}
	return b, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
