package store

import (
	"math"
	"sort"
	"sync"

	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/types"
)

// Key identifies one cached series.
type Key struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
}

// Stats is a snapshot of cache accounting.
type Stats struct {
	Hits           int64   `json:"cache_hits"`
	Misses         int64   `json:"cache_misses"`
	TotalKeys      int     `json:"total_keys"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// BarCache is an in-memory (symbol, timeframe) -> bars store. Every operation,
// including reads, runs under one mutex so hit/miss counters stay exact.
type BarCache struct {
	mu     sync.Mutex
	series map[Key][]types.Bar
	hits   int64
	misses int64
	logger logger.Interface
}

func NewBarCache(log logger.Interface) *BarCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &BarCache{
		series: make(map[Key][]types.Bar),
		logger: log,
	}
}

// Get returns the stored series and counts a hit, or counts a miss.
func (c *BarCache) Get(symbol string, tf types.Timeframe) ([]types.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bars, ok := c.series[Key{Symbol: symbol, Timeframe: tf}]
	if ok {
		c.hits++
		c.logger.Debug("cache hit", logger.NewField("symbol", symbol), logger.NewField("timeframe", tf))
		return bars, true
	}
	c.misses++
	c.logger.Debug("cache miss", logger.NewField("symbol", symbol), logger.NewField("timeframe", tf))
	return nil, false
}

// Set overwrites the series for the key.
func (c *BarCache) Set(symbol string, tf types.Timeframe, bars []types.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.series[Key{Symbol: symbol, Timeframe: tf}] = bars
	c.logger.Info("cached bars",
		logger.NewField("symbol", symbol),
		logger.NewField("timeframe", tf),
		logger.NewField("count", len(bars)),
	)
}

// Peek is Get without touching the counters.
func (c *BarCache) Peek(symbol string, tf types.Timeframe) ([]types.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bars, ok := c.series[Key{Symbol: symbol, Timeframe: tf}]
	return bars, ok
}

func (c *BarCache) Has(symbol string, tf types.Timeframe) bool {
	_, ok := c.Peek(symbol, tf)
	return ok
}

func (c *BarCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[Key][]types.Bar)
	c.logger.Warn("cache cleared")
}

func (c *BarCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		TotalKeys: len(c.series),
	}
	if total := c.hits + c.misses; total > 0 {
		st.HitRatePercent = math.Round(float64(c.hits)/float64(total)*100*100) / 100
	}
	return st
}

// Keys lists cached pairs ordered by symbol, then timeframe.
func (c *BarCache) Keys() []Key {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.series))
	for k := range c.series {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Timeframe < keys[j].Timeframe
	})
	return keys
}
