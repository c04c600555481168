package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime-chart-engine/internal/broadcast"
	"realtime-chart-engine/internal/config"
	"realtime-chart-engine/internal/history"
	"realtime-chart-engine/internal/httpapi"
	"realtime-chart-engine/internal/insightsentry"
	"realtime-chart-engine/internal/kafkasink"
	"realtime-chart-engine/internal/logger"
	"realtime-chart-engine/internal/ratelimit"
	"realtime-chart-engine/internal/store"

	"golang.org/x/sync/errgroup"
)

func main() {
	var port int
	var symbol string
	flag.IntVar(&port, "port", 0, "HTTP port (overrides APP_PORT)")
	flag.StringVar(&symbol, "symbol", "", "Initial stream symbol (overrides INSIGHT_SYMBOL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if port > 0 {
		cfg.App.Port = port
	}
	if symbol != "" {
		cfg.Insight.Symbol = symbol
	}

	base, err := logger.NewLogger(logger.Options{Level: logger.Level(cfg.App.LogLevel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := base.With(logger.NewField("app", cfg.App.Name))

	if err := run(cfg, log); err != nil {
		log.Error(err)
		_ = base.Sync()
		os.Exit(1)
	}
	_ = base.Sync()
}

func run(cfg *config.Config, log logger.Interface) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := store.NewBarCache(log)
	limiter := ratelimit.New(cfg.Insight.RateLimit, cfg.Insight.RatePeriod, ratelimit.WithLogger(log))
	rest := insightsentry.NewRestClient(cfg.Insight.RestURL, cfg.Insight.APIKey, cfg.Insight.RequestTimeout, limiter, log)
	svc := history.NewService(cache, rest, log)

	hub := broadcast.NewHub(log)
	defer func() { _ = hub.Close() }()

	stream := insightsentry.NewClient(insightsentry.Options{
		URL:         cfg.Insight.WebsocketURL,
		APIKey:      cfg.Insight.APIKey,
		Symbol:      cfg.Insight.Symbol,
		MaxAttempts: cfg.Insight.MaxReconnectAttempts,
		BaseDelay:   cfg.Insight.ReconnectBaseDelay,
	}, hub, log.With(logger.NewField("component", "stream")))
	defer func() { _ = stream.Close() }()

	if cfg.Kafka.Enabled() {
		hub.Register(kafkasink.NewPublisher(cfg.Kafka, stream.Symbol, log))
		log.Info("kafka sink enabled",
			logger.NewField("brokers", cfg.Kafka.Brokers),
			logger.NewField("topic", cfg.Kafka.Topic),
		)
	}

	mux := http.NewServeMux()
	routes := httpapi.NewRoutes(httpapi.Dependencies{
		Port:     cfg.App.Port,
		History:  svc,
		Stream:   stream,
		Upstream: rest,
		Cache:    cache,
		Hub:      hub,
		Logger:   log.With(logger.NewField("component", "http")),
	})
	routes.Register(mux)

	srv := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A stream that exhausts its reconnects leaves the HTTP surface up in the failed state.
		if err := stream.Run(ctx); err != nil {
			log.Error(err, logger.NewField("state", stream.State().String()))
		}
		return nil
	})

	g.Go(func() error {
		stream.KeepAlive(ctx, cfg.Insight.KeepAliveInterval)
		return nil
	})

	g.Go(func() error {
		log.Info("engine listening", logger.NewField("addr", srv.Addr), logger.NewField("symbol", cfg.Insight.Symbol))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = stream.Close()
		_ = hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
