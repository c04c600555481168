package insightsentry

import (
	"encoding/json"
	"fmt"
	"math"

	"realtime-chart-engine/internal/types"
)

// wireBar is the bar object shared by REST responses and stream data frames.
// time arrives as a JSON number that may carry a fractional part.
type wireBar struct {
	Time   float64 `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// UnmarshalJSON rejects bars missing any of the six fields instead of zero-filling them.
func (w *wireBar) UnmarshalJSON(b []byte) error {
	var raw struct {
		Time   *float64 `json:"time"`
		Open   *float64 `json:"open"`
		High   *float64 `json:"high"`
		Low    *float64 `json:"low"`
		Close  *float64 `json:"close"`
		Volume *float64 `json:"volume"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"time", raw.Time}, {"open", raw.Open}, {"high", raw.High},
		{"low", raw.Low}, {"close", raw.Close}, {"volume", raw.Volume},
	} {
		if f.v == nil {
			return fmt.Errorf("bar field %q missing", f.name)
		}
	}
	*w = wireBar{
		Time:   *raw.Time,
		Open:   *raw.Open,
		High:   *raw.High,
		Low:    *raw.Low,
		Close:  *raw.Close,
		Volume: *raw.Volume,
	}
	return nil
}

func (w wireBar) toBar() types.Bar {
	return types.Bar{
		Time:   int64(math.Trunc(w.Time)),
		Open:   w.Open,
		High:   w.High,
		Low:    w.Low,
		Close:  w.Close,
		Volume: w.Volume,
	}
}

func toBars(series []wireBar) []types.Bar {
	out := make([]types.Bar, len(series))
	for i, w := range series {
		out[i] = w.toBar()
	}
	return out
}

// seriesResponse is the REST series payload. Series is a pointer so a missing field
// can be told apart from an empty one.
type seriesResponse struct {
	Code    string     `json:"code"`
	BarType string     `json:"bar_type"`
	Series  *[]wireBar `json:"series"`
}

// frame is any inbound JSON frame on the stream.
type frame struct {
	Message *string   `json:"message"`
	Code    string    `json:"code"`
	Series  []wireBar `json:"series"`
}

type subscription struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	BarType     string `json:"bar_type"`
	BarInterval int    `json:"bar_interval"`
}

type directive struct {
	APIKey        string         `json:"api_key"`
	Action        string         `json:"action,omitempty"`
	Subscriptions []subscription `json:"subscriptions"`
}

const (
	pingFrame = "ping"
	pongFrame = "pong"

	actionUnsubscribe = "unsubscribe"
)

func seriesDirective(apiKey, symbol, action string) ([]byte, error) {
	return json.Marshal(directive{
		APIKey: apiKey,
		Action: action,
		Subscriptions: []subscription{{
			Code:        symbol,
			Type:        "series",
			BarType:     "minute",
			BarInterval: 1,
		}},
	})
}

// BarParams maps a timeframe onto the upstream bar_type and bar_interval parameters.
func BarParams(tf types.Timeframe) (barType string, interval int, ok bool) {
	switch tf {
	case types.Minute1:
		return "minute", 1, true
	case types.Minute5:
		return "minute", 5, true
	case types.Minute15:
		return "minute", 15, true
	case types.Minute30:
		return "minute", 30, true
	case types.Hour1:
		return "minute", 60, true
	case types.Hour4:
		return "minute", 240, true
	case types.Day1:
		return "day", 1, true
	case types.Week1:
		return "day", 7, true
	case types.Month1:
		return "day", 30, true
	}
	return "", 0, false
}
