package model

import (
	"encoding/json"
	"time"
)

// Reachability is tri-state: a probe that has not resolved yet is Unknown,
// which is different from a probe that failed.
type Reachability int

const (
	ReachabilityUnknown Reachability = iota
	Reachable
	Unreachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// ConfigFlags mirrors the "config" object of the health endpoint.
type ConfigFlags struct {
	HasURL        bool `json:"hasUrl"`
	HasAnonKey    bool `json:"hasAnonKey"`
	HasServiceKey bool `json:"hasServiceKey"`
	AllConfigured bool `json:"allConfigured"`
}

// Complete is the conjunction of the three presence flags. AllConfigured as
// reported by the server is not trusted on its own.
func (c ConfigFlags) Complete() bool {
	return c.HasURL && c.HasAnonKey && c.HasServiceKey
}

// HealthStatus is the body served by GET /health.
type HealthStatus struct {
	Status string      `json:"status"`
	Config ConfigFlags `json:"config"`
}

// HealthReport is the client's classification of one probe. It is
// recomputed on every probe and never persisted.
type HealthReport struct {
	Reachable      Reachability
	Config         ConfigFlags
	ConfigComplete bool
	// RawResponse is surfaced for diagnostics only; no logic reads it.
	RawResponse json.RawMessage
	// Err describes why the probe classified the service as unreachable.
	Err       string
	CheckedAt time.Time
}

// LiveViable reports whether the report allows delegating to the identity service.
func (h HealthReport) LiveViable() bool {
	return h.Reachable == Reachable && h.ConfigComplete
}
