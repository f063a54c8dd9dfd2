// Package probe checks whether the identity service can serve live sessions.
//
// A probe is one GET /health round trip with a bounded timeout. It never
// retries and never writes anything, so callers may run it as often and as
// concurrently as they like. Deciding when to re-probe is the caller's job.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/learning-platform/internal/model"
)

// DefaultTimeout bounds a probe when the caller does not choose one.
const DefaultTimeout = 3 * time.Second

// maxBody caps how much of the health response is read.
const maxBody = 16 << 10

// Prober probes one identity service.
type Prober struct {
	healthURL string
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Prober for the service at baseURL. A non-positive timeout
// falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, client *http.Client, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		healthURL: strings.TrimRight(baseURL, "/") + "/health",
		client:    client,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckHealth classifies the service.
//
// Network errors, timeouts, non-2xx statuses and undecodable bodies all give
// Reachable = Unreachable with Err set. ConfigComplete is recomputed from the
// three presence flags; the server's own allConfigured is not trusted.
func (p *Prober) CheckHealth(ctx context.Context) model.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	report := model.HealthReport{Reachable: model.Unreachable, CheckedAt: p.now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return p.fail(report, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail(report, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return p.fail(report, fmt.Errorf("reading body: %w", err))
	}
	report.RawResponse = raw

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.fail(report, fmt.Errorf("health returned HTTP %d", resp.StatusCode))
	}

	var body model.HealthStatus
	if err := json.Unmarshal(raw, &body); err != nil {
		return p.fail(report, fmt.Errorf("decoding body: %w", err))
	}

	report.Reachable = model.Reachable
	report.Config = body.Config
	report.ConfigComplete = body.Config.Complete()

	p.logger.Debug("probe: service reachable",
		slog.String("status", body.Status),
		slog.Bool("configComplete", report.ConfigComplete),
	)
	return report
}

func (p *Prober) fail(report model.HealthReport, err error) model.HealthReport {
	report.Err = err.Error()
	p.logger.Debug("probe: service unreachable", slog.String("error", report.Err))
	return report
}
