package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	App     AppConfig     `envPrefix:"APP_"`
	Insight InsightConfig `envPrefix:"INSIGHT_"`
	Kafka   KafkaConfig   `envPrefix:"KAFKA_"`
}

// AppConfig holds process level settings.
type AppConfig struct {
	Name            string        `env:"NAME" envDefault:"realtime-chart-engine"`
	Port            int           `env:"PORT" envDefault:"8000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// InsightConfig holds the upstream REST and streaming settings.
type InsightConfig struct {
	APIKey               string        `env:"API_KEY,required,notEmpty"`
	RestURL              string        `env:"REST_URL" envDefault:"https://api.insightsentry.com"`
	WebsocketURL         string        `env:"WS_URL" envDefault:"wss://realtime.insightsentry.com/live"`
	Symbol               string        `env:"SYMBOL" envDefault:"CME_MINI:MNQ1!"`
	RateLimit            int           `env:"RATE_LIMIT" envDefault:"25"`
	RatePeriod           time.Duration `env:"RATE_PERIOD" envDefault:"60s"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"1s"`
	KeepAliveInterval    time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"15s"`
}

// KafkaConfig configures the optional bar update sink. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"bar-updates"`
}

// Enabled reports whether a Kafka sink should be started.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load loads the configuration from the environment, reading .env first if it exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Insight.RateLimit <= 0 || c.Insight.RatePeriod <= 0 {
		return fmt.Errorf("invalid rate limit %d per %s", c.Insight.RateLimit, c.Insight.RatePeriod)
	}
	if c.Insight.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("max reconnect attempts must be positive, got %d", c.Insight.MaxReconnectAttempts)
	}
	if c.Insight.KeepAliveInterval <= 0 {
		return fmt.Errorf("keep-alive interval must be positive, got %s", c.Insight.KeepAliveInterval)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf(":%d", a.Port)
}
