package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds the process settings, populated from environment variables.
// Pipeline behaviour lives in Settings.
type Config struct {
	LogLevel        string
	LogFormat       string
	HTTPAddr        string // status server; empty disables it
	ShutdownTimeout time.Duration

	KafkaBrokers      []string // empty disables trigger publishing
	KafkaTriggerTopic string

	PushgatewayURL string // empty disables the metrics push

	MetnoBaseURL string
	MetnoTimeout time.Duration

	SettingsFile    string
	CredentialsFile string
}

// DefaultMetnoBaseURL is the MET Norway LocationForecast 2.0 endpoint.
const DefaultMetnoBaseURL = "https://api.met.no/weatherapi/locationforecast/2.0"

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	metnoTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("METNO_TIMEOUT", "30s"))
	if err != nil || metnoTimeout <= 0 {
		return nil, errors.New("invalid METNO_TIMEOUT")
	}

	var brokers []string
	if s := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); s != "" {
		brokers = sharedcfg.ParseBrokers(s)
	}

	cfg := &Config{
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		ShutdownTimeout:   shutdownTimeout,
		KafkaBrokers:      brokers,
		KafkaTriggerTopic: sharedcfg.EnvOrDefault("KAFKA_TRIGGER_TOPIC", "rainfall-triggers"),
		PushgatewayURL:    sharedcfg.EnvOrDefault("PUSHGATEWAY_URL", ""),
		MetnoBaseURL:      sharedcfg.EnvOrDefault("METNO_BASE_URL", DefaultMetnoBaseURL),
		MetnoTimeout:      metnoTimeout,
		SettingsFile:      sharedcfg.EnvOrDefault("RAINCAST_SETTINGS", "settings.yml"),
		CredentialsFile:   sharedcfg.EnvOrDefault("CREDENTIALS_FILE", "credentials/env.yml"),
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTriggerTopic == "" {
		return nil, errors.New("KAFKA_TRIGGER_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MetnoBaseURL == "" {
		return nil, errors.New("METNO_BASE_URL must not be empty")
	}

	return cfg, nil
}

// PublishEnabled reports whether trigger statuses go to Kafka.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }
