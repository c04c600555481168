package candle

import (
	"sort"
	"time"

	"realtime-chart-engine/internal/apperr"
	"realtime-chart-engine/internal/types"
)

// AggregateHistorical converts a finite, chronologically ordered array of 1m bars into
// target bars. Unlike the live Aggregator, intraday and daily targets use non-overlapping
// chunks of exactly N bars (a trailing partial chunk is dropped) and 1W is grouped by
// ISO week. 1M is not supported here.
func AggregateHistorical(bars []types.Bar, target types.Timeframe) ([]types.Bar, error) {
	spec, ok := target.Spec()
	if !ok {
		return nil, apperr.Validation("unknown timeframe %q", target)
	}
	if spec.Variable {
		return nil, apperr.Validation("cannot aggregate to %s (variable bar count)", target)
	}

	switch target {
	case types.Minute1:
		return bars, nil
	case types.Week1:
		return Weekly(Daily(bars)), nil
	}
	return Chunk(bars, spec.Bars), nil
}

// Chunk combines consecutive groups of exactly n bars.
func Chunk(bars []types.Bar, n int) []types.Bar {
	if n <= 0 {
		return nil
	}
	out := make([]types.Bar, 0, len(bars)/n)
	for i := 0; i+n <= len(bars); i += n {
		combined, err := types.Combine(bars[i : i+n])
		if err != nil {
			continue
		}
		out = append(out, combined)
	}
	return out
}

// Daily groups bars by UTC calendar date.
func Daily(bars []types.Bar) []types.Bar {
	return groupBy(bars, func(t time.Time) int {
		y, m, d := t.Date()
		return y*10000 + int(m)*100 + d
	})
}

// Weekly groups daily bars by ISO year and week.
func Weekly(daily []types.Bar) []types.Bar {
	return groupBy(daily, func(t time.Time) int {
		y, w := t.ISOWeek()
		return y*100 + w
	})
}

// groupBy buckets bars by an ordered integer key, keeping arrival order inside a bucket,
// and returns one combined bar per bucket in key order.
func groupBy(bars []types.Bar, key func(time.Time) int) []types.Bar {
	groups := make(map[int][]types.Bar)
	for _, b := range bars {
		k := key(b.UTC())
		groups[k] = append(groups[k], b)
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]types.Bar, 0, len(keys))
	for _, k := range keys {
		combined, err := types.Combine(groups[k])
		if err != nil {
			continue
		}
		out = append(out, combined)
	}
	return out
}
