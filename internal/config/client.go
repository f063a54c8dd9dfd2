package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Client is the configuration of the terminal client.
type Client struct {
	ServiceURL      string        `env:"LEARN_SERVICE_URL" envDefault:"http://localhost:8080"`
	AnonKey         string        `env:"LEARN_ANON_KEY"`
	SessionDB       string        `env:"LEARN_SESSION_DB" envDefault:"data/session.db"`
	ProbeTimeout    time.Duration `env:"LEARN_PROBE_TIMEOUT" envDefault:"3s"`
	RecheckInterval time.Duration `env:"LEARN_RECHECK_INTERVAL" envDefault:"5s"`
	// Client logs go to stderr; warn keeps them out of normal output.
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"warn"`
}

// LoadClient parses and validates the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}
	if cfg.ServiceURL == "" {
		return Client{}, fmt.Errorf("config: LEARN_SERVICE_URL must not be empty")
	}
	if cfg.ProbeTimeout <= 0 {
		return Client{}, fmt.Errorf("config: LEARN_PROBE_TIMEOUT must be positive")
	}
	return cfg, nil
}
