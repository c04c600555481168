package insightsentry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/ratelimit"
	"realtime-chart-engine/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRest(t *testing.T, h http.HandlerFunc, limiter *ratelimit.Limiter) *RestClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRestClient(srv.URL, "secret", 5*time.Second, limiter, nil)
}

func TestRestClient_FetchSeries(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"code":"CME_MINI:MNQ1!","series":[
			{"time":1741012200.9,"open":1,"high":3,"low":0.5,"close":2,"volume":10},
			{"time":1741012260,"open":2,"high":4,"low":1.5,"close":3,"volume":5}
		]}`))
	}, nil)

	bars, err := c.FetchSeries(context.Background(), SeriesRequest{
		Symbol:     "CME_MINI:MNQ1!",
		Timeframe:  types.Minute15,
		DataPoints: 300,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/symbols/CME_MINI:MNQ1!/series", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "minute", gotQuery["bar_type"][0])
	assert.Equal(t, "15", gotQuery["bar_interval"][0])
	assert.Equal(t, "300", gotQuery["data_points"][0])
	assert.Equal(t, "false", gotQuery["extended"][0])

	require.Len(t, bars, 2)
	assert.Equal(t, types.Bar{Time: 1741012200, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10}, bars[0])
	assert.Equal(t, int64(1741012260), bars[1].Time)
}

func TestRestClient_EscapesSymbol(t *testing.T) {
	var paths []string
	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"series":[]}`))
	}, nil)

	_, err := c.FetchSeries(context.Background(), SeriesRequest{Symbol: "FX:EUR/USD", Timeframe: types.Minute1, DataPoints: 1})
	require.NoError(t, err)
	_, err = c.SymbolInfo(context.Background(), "FX:EUR/USD")
	require.NoError(t, err)

	assert.Equal(t, []string{"/v3/symbols/FX:EUR%2FUSD/series", "/v3/symbols/FX:EUR%2FUSD/info"}, paths)
}

func TestRestClient_FetchSeriesErrors(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		req     SeriesRequest
		want    apperr.Kind
		noCalls bool
	}{
		{
			name:   "missing series",
			status: http.StatusOK,
			body:   `{"code":"X"}`,
			req:    SeriesRequest{Symbol: "X", Timeframe: types.Minute1, DataPoints: 1},
			want:   apperr.KindParse,
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"series":[`,
			req:    SeriesRequest{Symbol: "X", Timeframe: types.Minute1, DataPoints: 1},
			want:   apperr.KindParse,
		},
		{
			name:   "bar missing fields",
			status: http.StatusOK,
			body:   `{"series":[{"time":1741012200,"open":1,"high":2,"low":0.5}]}`,
			req:    SeriesRequest{Symbol: "X", Timeframe: types.Minute1, DataPoints: 1},
			want:   apperr.KindParse,
		},
		{
			name:   "upstream status",
			status: http.StatusTooManyRequests,
			body:   `{"error":"slow down"}`,
			req:    SeriesRequest{Symbol: "X", Timeframe: types.Minute1, DataPoints: 1},
			want:   apperr.KindUpstream,
		},
		{
			name:    "unknown timeframe",
			req:     SeriesRequest{Symbol: "X", Timeframe: "2m", DataPoints: 1},
			want:    apperr.KindValidation,
			noCalls: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			_, err := c.FetchSeries(context.Background(), tc.req)

			require.Error(t, err)
			assert.Equal(t, tc.want, apperr.KindOf(err))
			if tc.noCalls {
				assert.Zero(t, calls)
			}
		})
	}
}

func TestRestClient_EmptySeriesIsNotAnError(t *testing.T) {
	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"series":[]}`))
	}, nil)

	bars, err := c.FetchSeries(context.Background(), SeriesRequest{Symbol: "X", Timeframe: types.Day1, DataPoints: 10})

	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestRestClient_UsesLimiter(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"series":[]}`))
	}, limiter)

	_, err := c.FetchSeries(context.Background(), SeriesRequest{Symbol: "X", Timeframe: types.Minute1, DataPoints: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, limiter.Available(), 0.01)

	_, err = c.Quote(context.Background(), "X")
	require.NoError(t, err)
	assert.InDelta(t, 0, limiter.Available(), 0.01)
}

func TestRestClient_LimiterCancelled(t *testing.T) {
	limiter := ratelimit.New(1, time.Hour)
	calls := 0
	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}, limiter)

	_, err := c.SymbolInfo(context.Background(), "X")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.SymbolInfo(ctx, "X")

	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRestClient_QuoteAndInfo(t *testing.T) {
	c := newTestRest(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/symbols/quotes":
			assert.Equal(t, "CME_MINI:MNQ1!", r.URL.Query().Get("codes"))
			_, _ = w.Write([]byte(`{"data":[{"code":"CME_MINI:MNQ1!","last_price":21000.5}]}`))
		case "/v3/symbols/CME_MINI:MNQ1!/info":
			_, _ = w.Write([]byte(`{"code":"CME_MINI:MNQ1!","type":"futures"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil)

	quote, err := c.Quote(context.Background(), "CME_MINI:MNQ1!")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"code":"CME_MINI:MNQ1!","last_price":21000.5}]}`, string(quote))

	info, err := c.SymbolInfo(context.Background(), "CME_MINI:MNQ1!")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"CME_MINI:MNQ1!","type":"futures"}`, string(info))

	_, err = c.SymbolInfo(context.Background(), "NOPE")
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}
