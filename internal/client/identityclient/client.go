// Package identityclient talks to the identity service over HTTP.
//
// Every call runs through a circuit breaker. Answers the server gives on
// purpose (validation, conflict, auth, ...) count as successes; only
// transport failures and unexplained 5xx responses trip the breaker. While
// the breaker is open calls fail immediately with apperror.ErrUnavailable,
// so a dead backend does not stall each login for a full timeout.
package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
)

const (
	apiKeyHeader = "apikey"
	maxBody      = 1 << 20
)

// breakerTrips is the number of consecutive failures that opens the breaker.
const breakerTrips = 3

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	Country   string `json:"country,omitempty"`
}

// RetryRequest is the body of POST /signup/retry.
type RetryRequest struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	Country   string `json:"country,omitempty"`
}

// LoginResult is the body of a successful POST /login.
type LoginResult struct {
	AccessToken string             `json:"accessToken"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	Profile     *model.UserProfile `json:"profile"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
	UserID  string `json:"userId"`
}

// Client is an HTTP client for the identity service.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	// HTTPClient defaults to one with a 10 second timeout.
	HTTPClient *http.Client
	// OpenTimeout is how long the breaker stays open before letting a
	// trial request through. Defaults to 30 seconds.
	OpenTimeout time.Duration
}

// New creates a Client for the service at baseURL.
func New(baseURL, anonKey string, opts Options, logger *slog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    hc,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity-service",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: answered,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("identity client: breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// answered reports whether err is a deliberate answer from the service
// rather than a sign that the service is down. A call the caller cancelled
// says nothing about the service either way.
func answered(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return !errors.Is(err, apperror.ErrUnavailable) && apperror.Kind(err) != "internal_error"
}

// BreakerState reports the breaker state, for diagnostics.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Signup creates an account and returns its userId.
//
// A partial failure comes back as an *apperror.AppError wrapping
// ErrPartialFailure whose Field is the already-issued userId.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.call(ctx, http.MethodPost, "/signup", "", req, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

// RetryProfileWrite completes the profile of a partial signup.
func (c *Client) RetryProfileWrite(ctx context.Context, req RetryRequest) (*model.UserProfile, error) {
	var out model.UserProfile
	if err := c.call(ctx, http.MethodPost, "/signup/retry", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for an access token and the caller's profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResult
	if err := c.call(ctx, http.MethodPost, "/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the profile of the token's owner.
func (c *Client) Profile(ctx context.Context, accessToken string) (*model.UserProfile, error) {
	var out model.UserProfile
	if err := c.call(ctx, http.MethodGet, "/profile", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path, bearer string, in, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, bearer, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", apperror.Unavailable("identity service"), err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("identity client: encoding %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("identity client: building %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.anonKey != "" {
		req.Header.Set(apiKeyHeader, c.anonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.Unavailable("identity service"), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", apperror.Unavailable("identity service"), path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("identity client: decoding %s: %w", path, err)
		}
		return nil
	}

	return c.decodeError(path, resp.StatusCode, raw)
}

// decodeError turns an error body back into a typed error.
func (c *Client) decodeError(path string, status int, raw []byte) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
		c.logger.Warn("identity client: unexpected response",
			slog.String("path", path),
			slog.Int("status", status),
		)
		if status >= 500 {
			return apperror.Unavailable("identity service")
		}
		return apperror.FromKind("internal_error", fmt.Sprintf("unexpected HTTP %d from %s", status, path))
	}

	appErr := apperror.FromKind(eb.Error, eb.Message)
	appErr.Field = eb.Field
	if errors.Is(appErr, apperror.ErrPartialFailure) {
		appErr.Field = eb.UserID
	}
	return appErr
}
