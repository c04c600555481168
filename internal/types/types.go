package types

import (
	"time"

	"realtime-chart-engine/internal/apperr"
)

// Bar is one OHLCV period. Time is the period start in seconds since epoch.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// UTC returns the bar start as a UTC time. Calendar grouping uses this.
func (b Bar) UTC() time.Time {
	return time.Unix(b.Time, 0).UTC()
}

// ErrEmptySeries is returned when combining zero bars.
var ErrEmptySeries = &apperr.Error{Kind: apperr.KindInternal, Message: "cannot combine an empty bar series"}

// Combine merges an ordered, non-empty run of finer bars into one coarser bar.
func Combine(bars []Bar) (Bar, error) {
	if len(bars) == 0 {
		return Bar{}, ErrEmptySeries
	}

	out := Bar{
		Time:  bars[0].Time,
		Open:  bars[0].Open,
		High:  bars[0].High,
		Low:   bars[0].Low,
		Close: bars[len(bars)-1].Close,
	}
	for _, b := range bars {
		if b.High > out.High {
			out.High = b.High
		}
		if b.Low < out.Low {
			out.Low = b.Low
		}
		out.Volume += b.Volume
	}
	return out, nil
}
