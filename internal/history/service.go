package history

import (
	"context"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/candle"
	"realtime-chart-engine/internal/insightsentry"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/store"
	"realtime-chart-engine/internal/types"
)

const (
	DefaultBars = 1000
	MaxBars     = insightsentry.MaxDataPoints

	minutesPerDay = 1440
)

// Fetcher loads raw series from upstream.
//
//go:generate mockgen -source service.go -destination=mock/fetcher_mock.go -package=history_mock
type Fetcher interface {
	FetchSeries(ctx context.Context, req insightsentry.SeriesRequest) ([]types.Bar, error)
}

// Result is the answer to a history query.
type Result struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
	Bars      []types.Bar     `json:"bars"`
	Count     int             `json:"count"`
	Cached    bool            `json:"cached"`
}

// Stats describes what is cached for one (symbol, timeframe).
type Stats struct {
	Symbol     string          `json:"symbol"`
	Timeframe  types.Timeframe `json:"timeframe"`
	BarsLoaded int             `json:"bars_loaded"`
	LastUpdate *int64          `json:"last_update"`
}

// Service answers history queries from the cache, falling back to the rate limited
// upstream. Daily and weekly series are rebuilt from 1m data with the batch aggregator.
type Service struct {
	cache   *store.BarCache
	fetcher Fetcher
	logger  logger.Interface
}

func NewService(cache *store.BarCache, fetcher Fetcher, log logger.Interface) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{cache: cache, fetcher: fetcher, logger: log}
}

// History returns the most recent count bars of symbol at timeframe.
func (s *Service) History(ctx context.Context, symbol, timeframe string, count int) (*Result, error) {
	if symbol == "" {
		return nil, apperr.Validation("symbol required")
	}
	tf, err := types.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if count < 1 || count > MaxBars {
		return nil, apperr.Validation("bars must be between 1 and %d, got %d", MaxBars, count)
	}
	if spec, _ := tf.Spec(); spec.Variable {
		return nil, apperr.Validation("history for %s is not supported (variable bar count)", tf)
	}

	if bars, ok := s.cache.Get(symbol, tf); ok {
		bars = tail(bars, count)
		return &Result{Symbol: symbol, Timeframe: tf, Bars: bars, Count: len(bars), Cached: true}, nil
	}

	var bars []types.Bar
	switch tf {
	case types.Day1, types.Week1:
		bars, err = s.fromMinutes(ctx, symbol, tf, count)
	default:
		bars, err = s.fetch(ctx, symbol, tf, count)
	}
	if err != nil {
		s.logger.Error(err,
			logger.NewField("symbol", symbol),
			logger.NewField("timeframe", tf),
			logger.NewField("bars", count),
		)
		return nil, err
	}

	if len(bars) > 0 {
		s.cache.Set(symbol, tf, bars)
	}
	bars = tail(bars, count)
	return &Result{Symbol: symbol, Timeframe: tf, Bars: bars, Count: len(bars), Cached: false}, nil
}

// fromMinutes builds daily or weekly bars from a fresh 1m series of up to count days.
// The 1m source bypasses the cache, which may hold a shorter 1m series.
func (s *Service) fromMinutes(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	n := count * minutesPerDay
	if n > MaxBars {
		n = MaxBars
	}
	minutes, err := s.fetch(ctx, symbol, types.Minute1, n)
	if err != nil {
		return nil, err
	}

	bars, err := candle.AggregateHistorical(minutes, tf)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("aggregated history",
		logger.NewField("symbol", symbol),
		logger.NewField("timeframe", tf),
		logger.NewField("minutes", len(minutes)),
		logger.NewField("bars", len(bars)),
	)
	return bars, nil
}

func (s *Service) fetch(ctx context.Context, symbol string, tf types.Timeframe, n int) ([]types.Bar, error) {
	return s.fetcher.FetchSeries(ctx, insightsentry.SeriesRequest{
		Symbol:     symbol,
		Timeframe:  tf,
		DataPoints: n,
		Extended:   true,
	})
}

// Stats reports the cached state of (symbol, timeframe) without touching hit counters.
func (s *Service) Stats(symbol, timeframe string) (*Stats, error) {
	tf, err := types.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	st := &Stats{Symbol: symbol, Timeframe: tf}
	if bars, ok := s.cache.Peek(symbol, tf); ok {
		st.BarsLoaded = len(bars)
		if len(bars) > 0 {
			last := bars[len(bars)-1].Time
			st.LastUpdate = &last
		}
	}
	return st, nil
}

func tail(bars []types.Bar, n int) []types.Bar {
	if len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
