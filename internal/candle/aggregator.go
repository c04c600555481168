package candle

import (
	"realtime-chart-engine/internal/types"
)

// Update is one timeframe whose displayed bar changed on the last AddBar call.
// Bars always has exactly one element.
type Update struct {
	Timeframe types.Timeframe `json:"timeframe"`
	Bars      []types.Bar     `json:"bars"`
}

// slidingTimeframes are maintained as trailing windows of N one-minute bars, in emit order.
var slidingTimeframes = []types.Timeframe{
	types.Minute5, types.Minute15, types.Minute30, types.Hour1, types.Hour4, types.Day1,
}

// Aggregator derives every higher timeframe from a chronologically ordered stream of
// 1m bars. It is not safe for concurrent use; one goroutine owns it.
type Aggregator struct {
	windows map[types.Timeframe]*window
	daily   []types.Bar
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

// Reset discards all windows and the running daily bars.
func (a *Aggregator) Reset() {
	a.windows = make(map[types.Timeframe]*window, len(slidingTimeframes))
	for _, tf := range slidingTimeframes {
		spec, _ := tf.Spec()
		a.windows[tf] = newWindow(spec.Bars)
	}
	a.daily = nil
}

// AddBar feeds one 1m bar and returns the changed timeframes ordered finest first.
//
// 5m through 1D are trailing windows over the last N minutes, so once warm they update
// on every bar. Each full daily window is also appended to the running daily list from
// which 1W (last 5 daily bars) and 1M (current calendar month) are derived.
func (a *Aggregator) AddBar(bar types.Bar) []Update {
	updates := []Update{{Timeframe: types.Minute1, Bars: []types.Bar{bar}}}

	for _, tf := range slidingTimeframes {
		w := a.windows[tf]
		w.push(bar)
		if !w.full() {
			continue
		}
		combined, err := types.Combine(w.ordered())
		if err != nil {
			continue
		}
		updates = append(updates, Update{Timeframe: tf, Bars: []types.Bar{combined}})

		if tf == types.Day1 {
			updates = append(updates, a.addDaily(combined)...)
		}
	}
	return updates
}

// AddDaily appends an already formed daily bar and returns the resulting 1W and 1M updates.
func (a *Aggregator) AddDaily(day types.Bar) []Update {
	return a.addDaily(day)
}

// Daily returns a copy of the running daily bars.
func (a *Aggregator) Daily() []types.Bar {
	out := make([]types.Bar, len(a.daily))
	copy(out, a.daily)
	return out
}

// Warm reports how many 1m bars the window for tf currently holds.
func (a *Aggregator) Warm(tf types.Timeframe) int {
	if w, ok := a.windows[tf]; ok {
		return w.len()
	}
	return 0
}

func (a *Aggregator) addDaily(day types.Bar) []Update {
	a.daily = append(a.daily, day)

	var updates []Update
	if weekSpec, _ := types.Week1.Spec(); len(a.daily) >= weekSpec.Bars {
		if weekly, err := types.Combine(a.daily[len(a.daily)-weekSpec.Bars:]); err == nil {
			updates = append(updates, Update{Timeframe: types.Week1, Bars: []types.Bar{weekly}})
		}
	}
	if monthly, ok := a.monthly(); ok {
		updates = append(updates, Update{Timeframe: types.Month1, Bars: []types.Bar{monthly}})
	}
	return updates
}

// monthly combines the trailing run of daily bars sharing the latest bar's month and year.
func (a *Aggregator) monthly() (types.Bar, bool) {
	if len(a.daily) == 0 {
		return types.Bar{}, false
	}
	latest := a.daily[len(a.daily)-1].UTC()

	start := len(a.daily)
	for start > 0 {
		t := a.daily[start-1].UTC()
		if t.Month() != latest.Month() || t.Year() != latest.Year() {
			break
		}
		start--
	}

	combined, err := types.Combine(a.daily[start:])
	if err != nil {
		return types.Bar{}, false
	}
	return combined, true
}
