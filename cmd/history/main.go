package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"realtime-chart-engine/internal/candle"
	"realtime-chart-engine/internal/config"
	"realtime-chart-engine/internal/history"
	"realtime-chart-engine/internal/insightsentry"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/ratelimit"
	"realtime-chart-engine/internal/store"
	"realtime-chart-engine/internal/types"
)

func main() {
	var symbol string
	var timeframe string
	var bars int
	var replay bool
	var asJSON bool
	var timeout time.Duration

	flag.StringVar(&symbol, "symbol", "", "Upstream symbol (defaults to INSIGHT_SYMBOL)")
	flag.StringVar(&timeframe, "timeframe", "1m", "Timeframe: 1m,5m,15m,30m,1H,4H,1D,1W,1M")
	flag.IntVar(&bars, "bars", history.DefaultBars, "Number of bars (1-20000)")
	flag.BoolVar(&replay, "replay", false, "Replay 1m history through the live aggregator and print the last bar per timeframe")
	flag.BoolVar(&asJSON, "json", false, "Print JSON instead of a summary")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall request timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if symbol == "" {
		symbol = cfg.Insight.Symbol
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	limiter := ratelimit.New(cfg.Insight.RateLimit, cfg.Insight.RatePeriod)
	rest := insightsentry.NewRestClient(cfg.Insight.RestURL, cfg.Insight.APIKey, cfg.Insight.RequestTimeout, limiter, logger.NewNop())
	svc := history.NewService(store.NewBarCache(nil), rest, nil)

	if replay {
		timeframe = string(types.Minute1)
	}
	res, err := svc.History(ctx, symbol, timeframe, bars)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	if len(res.Bars) == 0 {
		log.Fatalf("no bars fetched")
	}

	if replay {
		printReplay(res.Bars, asJSON)
		return
	}

	if asJSON {
		encode(res)
		return
	}
	first, last := res.Bars[0], res.Bars[len(res.Bars)-1]
	fmt.Printf("Symbol: %s\n", res.Symbol)
	fmt.Printf("Timeframe: %s\n", res.Timeframe)
	fmt.Printf("Bars: %d\n", res.Count)
	fmt.Printf("From: %s\n", first.UTC().Format(time.RFC3339))
	fmt.Printf("To: %s\n", last.UTC().Format(time.RFC3339))
	fmt.Printf("Last close: %.2f\n", last.Close)
}

// printReplay feeds bars through a fresh aggregator and reports the final bar of every
// timeframe that warmed up.
func printReplay(bars []types.Bar, asJSON bool) {
	agg := candle.NewAggregator()
	latest := make(map[types.Timeframe]types.Bar)
	for _, b := range bars {
		for _, u := range agg.AddBar(b) {
			latest[u.Timeframe] = u.Bars[0]
		}
	}

	if asJSON {
		encode(latest)
		return
	}
	fmt.Printf("Replayed: %d\n", len(bars))
	for _, spec := range types.Timeframes() {
		b, ok := latest[spec.Name]
		if !ok {
			fmt.Printf("%-3s  cold (%s)\n", spec.Name, warmth(agg, spec))
			continue
		}
		fmt.Printf("%-3s  %s  O %.2f  H %.2f  L %.2f  C %.2f  V %.0f\n",
			spec.Name, b.UTC().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
}

// warmth describes how far a cold timeframe is from its first bar. Weekly and monthly
// bars are built from completed days, not from 1m windows.
func warmth(agg *candle.Aggregator, spec types.TimeframeSpec) string {
	switch spec.Name {
	case types.Week1:
		return fmt.Sprintf("%d/%d daily", len(agg.Daily()), spec.Bars)
	case types.Month1:
		return fmt.Sprintf("%d daily", len(agg.Daily()))
	}
	return fmt.Sprintf("%d/%d", agg.Warm(spec.Name), spec.Bars)
}

func encode(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
