package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envTestConfig struct {
	Port int `env:"LEARN_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("LEARN_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/identity.db", cfg.DBPath)
	assert.Equal(t, DriverLocal, cfg.AuthorityDriver)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, map[string]int{"python": 12, "javascript": 12, "web-basics": 8}, cfg.CourseTracks)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadServer_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AUTHORITY_DRIVER", "gotrue")
	t.Setenv("AUTHORITY_URL", "https://auth.example.com")
	t.Setenv("COURSE_TRACKS", "go:20")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverGoTrue, cfg.AuthorityDriver)
	assert.Equal(t, map[string]int{"go": 20}, cfg.CourseTracks)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestServerValidate(t *testing.T) {
	base := Server{Port: 8080, AuthorityDriver: DriverLocal, CourseTracks: map[string]int{"python": 12}}

	tests := []struct {
		name   string
		mutate func(*Server)
	}{
		{"bad port", func(s *Server) { s.Port = 0 }},
		{"unknown driver", func(s *Server) { s.AuthorityDriver = "ldap" }},
		{"no tracks", func(s *Server) { s.CourseTracks = nil }},
		{"zero total", func(s *Server) { s.CourseTracks = map[string]int{"python": 0} }},
	}

	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.CourseTracks = map[string]int{"python": 12}
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestServerPresence(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Server
		wantAll     bool
		wantMissing []string
	}{
		{
			name:        "nothing set",
			cfg:         Server{},
			wantMissing: []string{"AUTHORITY_URL", "AUTHORITY_ANON_KEY", "AUTHORITY_SERVICE_KEY"},
		},
		{
			name:        "service key missing",
			cfg:         Server{AuthorityURL: "u", AnonKey: "a"},
			wantMissing: []string{"AUTHORITY_SERVICE_KEY"},
		},
		{
			name:    "complete",
			cfg:     Server{AuthorityURL: "u", AnonKey: "a", ServiceKey: "s"},
			wantAll: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := tt.cfg.Presence()
			assert.Equal(t, tt.wantAll, flags.AllConfigured)
			assert.Equal(t, tt.wantAll, flags.Complete())
			assert.Equal(t, tt.wantMissing, tt.cfg.Missing())
		})
	}
}

func TestLoadClient(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.ServiceURL)
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5*time.Second, cfg.RecheckInterval)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)

	t.Setenv("LEARN_PROBE_TIMEOUT", "0s")
	_, err = LoadClient()
	assert.Error(t, err)
}
