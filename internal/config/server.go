package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/learning-platform/internal/model"
)

// Authority drivers accepted by AUTHORITY_DRIVER.
const (
	DriverLocal  = "local"
	DriverGoTrue = "gotrue"
)

// Server is the identity service configuration.
//
// AuthorityURL, AnonKey and ServiceKey are the three required secrets. The
// server still starts without them so /health can report what is missing;
// signup then fails fast with a configuration error.
type Server struct {
	Port            int    `env:"PORT" envDefault:"8080"`
	DBPath          string `env:"DB_PATH" envDefault:"data/identity.db"`
	AuthorityDriver string `env:"AUTHORITY_DRIVER" envDefault:"local"`

	AuthorityURL string `env:"AUTHORITY_URL"`
	AnonKey      string `env:"AUTHORITY_ANON_KEY"`
	ServiceKey   string `env:"AUTHORITY_SERVICE_KEY"`

	// BootstrapToken guards POST /bootstrap-admin. Empty means the route
	// is not mounted at all.
	BootstrapToken string `env:"BOOTSTRAP_TOKEN"`

	AllowedOrigins []string       `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	TokenTTL       time.Duration  `env:"TOKEN_TTL" envDefault:"1h"`
	CourseTracks   map[string]int `env:"COURSE_TRACKS" envDefault:"python:12,javascript:12,web-basics:8" envSeparator:"," envKeyValSeparator:":"`
	LogLevel       slog.Level     `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer parses and validates the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with at all. Missing
// secrets are not an error here; see Missing.
func (s Server) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", s.Port)
	}
	if s.AuthorityDriver != DriverLocal && s.AuthorityDriver != DriverGoTrue {
		return fmt.Errorf("config: AUTHORITY_DRIVER must be %q or %q, got %q", DriverLocal, DriverGoTrue, s.AuthorityDriver)
	}
	if len(s.CourseTracks) == 0 {
		return fmt.Errorf("config: COURSE_TRACKS must name at least one track")
	}
	for name, total := range s.CourseTracks {
		if total <= 0 {
			return fmt.Errorf("config: COURSE_TRACKS track %q must have a positive lesson total", name)
		}
	}
	return nil
}

// Presence reports which of the three required secrets are set.
func (s Server) Presence() model.ConfigFlags {
	f := model.ConfigFlags{
		HasURL:        s.AuthorityURL != "",
		HasAnonKey:    s.AnonKey != "",
		HasServiceKey: s.ServiceKey != "",
	}
	f.AllConfigured = f.Complete()
	return f
}

// Missing lists the environment variables of absent required secrets.
func (s Server) Missing() []string {
	var missing []string
	if s.AuthorityURL == "" {
		missing = append(missing, "AUTHORITY_URL")
	}
	if s.AnonKey == "" {
		missing = append(missing, "AUTHORITY_ANON_KEY")
	}
	if s.ServiceKey == "" {
		missing = append(missing, "AUTHORITY_SERVICE_KEY")
	}
	return missing
}
