package types

import "realtime-chart-engine/internal/apperr"

// Timeframe is a named aggregation granularity.
type Timeframe string

const (
	Minute1  Timeframe = "1m"
	Minute5  Timeframe = "5m"
	Minute15 Timeframe = "15m"
	Minute30 Timeframe = "30m"
	Hour1    Timeframe = "1H"
	Hour4    Timeframe = "4H"
	Day1     Timeframe = "1D"
	Week1    Timeframe = "1W"
	Month1   Timeframe = "1M"
)

// TimeframeSpec is the static metadata for a timeframe. Bars is the number of finer
// bars making up one period (1m bars, or daily bars for 1W); it is 0 when Variable.
type TimeframeSpec struct {
	Name     Timeframe
	Bars     int
	Variable bool
	Seconds  int64
}

var timeframes = []TimeframeSpec{
	{Name: Minute1, Bars: 1, Seconds: 60},
	{Name: Minute5, Bars: 5, Seconds: 300},
	{Name: Minute15, Bars: 15, Seconds: 900},
	{Name: Minute30, Bars: 30, Seconds: 1800},
	{Name: Hour1, Bars: 60, Seconds: 3600},
	{Name: Hour4, Bars: 240, Seconds: 14400},
	{Name: Day1, Bars: 1440, Seconds: 86400},
	{Name: Week1, Bars: 5, Seconds: 604800},
	{Name: Month1, Variable: true, Seconds: 2592000},
}

var timeframeIndex = func() map[Timeframe]TimeframeSpec {
	m := make(map[Timeframe]TimeframeSpec, len(timeframes))
	for _, tf := range timeframes {
		m[tf.Name] = tf
	}
	return m
}()

// Timeframes returns every supported timeframe, finest first.
func Timeframes() []TimeframeSpec {
	out := make([]TimeframeSpec, len(timeframes))
	copy(out, timeframes)
	return out
}

// ParseTimeframe validates a timeframe identifier. Identifiers are case-sensitive.
func ParseTimeframe(s string) (Timeframe, error) {
	if _, ok := timeframeIndex[Timeframe(s)]; !ok {
		return "", apperr.Validation("unknown timeframe %q", s)
	}
	return Timeframe(s), nil
}

// Spec returns the metadata for t.
func (t Timeframe) Spec() (TimeframeSpec, bool) {
	spec, ok := timeframeIndex[t]
	return spec, ok
}

func (t Timeframe) String() string {
	return string(t)
}
