package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/model"
)

// compile-time check that *GoTrue implements Authority
var _ Authority = (*GoTrue)(nil)

const gotrueName = "credential authority"

// GoTrue is an Authority backed by a Supabase-compatible auth server.
//
// ENDPOINTS USED:
//   - POST /auth/v1/admin/users              (service key) create a confirmed user
//   - POST /auth/v1/token?grant_type=password (anon key)   password sign-in
//   - GET  /auth/v1/user                     (anon key + user token) verify a token
//   - GET  /auth/v1/admin/users/{id}         (service key) look a user up
type GoTrue struct {
	baseURL    string
	anonKey    string
	serviceKey string
	client     *http.Client
	logger     *slog.Logger
}

// NewGoTrue creates a GoTrue authority. A nil client gets a 10s timeout.
func NewGoTrue(baseURL, anonKey, serviceKey string, client *http.Client, logger *slog.Logger) *GoTrue {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoTrue{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		client:     client,
		logger:     logger,
	}
}

// gotrueUser is the part of a GoTrue user object we read.
type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// gotrueError covers the error body shapes GoTrue has used across versions.
type gotrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return "request rejected"
}

// CreateUser creates an already-confirmed user through the admin API.
func (a *GoTrue) CreateUser(ctx context.Context, email, password string) (string, error) {
	addr, err := ValidateEmail(email)
	if err != nil {
		return "", err
	}

	body := map[string]any{"email": addr, "password": password, "email_confirm": true}
	var u gotrueUser
	status, gerr, err := a.do(ctx, http.MethodPost, "/auth/v1/admin/users", a.serviceKey, a.serviceKey, body, &u)
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		if u.ID == "" {
			return "", fmt.Errorf("authority: create user response has no id")
		}
		return u.ID, nil
	case isDuplicate(status, gerr):
		return "", apperror.Conflict("user", addr)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return "", apperror.ValidationFailed("password", gerr.text())
	}
	return "", a.unexpected("create user", status, gerr)
}

// SignIn uses the password grant.
func (a *GoTrue) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	body := map[string]string{"email": model.NormalizeEmail(email), "password": password}
	var resp struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   int        `json:"expires_in"`
		User        gotrueUser `json:"user"`
	}
	status, gerr, err := a.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", a.anonKey, "", body, &resp)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		return &Grant{
			AccessToken: resp.AccessToken,
			UserID:      resp.User.ID,
			Email:       resp.User.Email,
			ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Truncate(time.Second),
		}, nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return nil, apperror.InvalidCredentials()
	}
	return nil, a.unexpected("sign in", status, gerr)
}

// VerifyToken asks the authority who token belongs to.
func (a *GoTrue) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	var u gotrueUser
	status, gerr, err := a.do(ctx, http.MethodGet, "/auth/v1/user", a.anonKey, token, nil, &u)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		return &Identity{UserID: u.ID, Email: u.Email}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", apperror.ErrAuth, gerr.text())
	}
	return nil, a.unexpected("verify token", status, gerr)
}

// LookupUser fetches a user through the admin API.
func (a *GoTrue) LookupUser(ctx context.Context, userID string) (*Identity, error) {
	var u gotrueUser
	path := "/auth/v1/admin/users/" + url.PathEscape(userID)
	status, gerr, err := a.do(ctx, http.MethodGet, path, a.serviceKey, a.serviceKey, nil, &u)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		return &Identity{UserID: u.ID, Email: u.Email}, nil
	case http.StatusNotFound:
		return nil, apperror.NotFound("user", userID)
	}
	return nil, a.unexpected("lookup user", status, gerr)
}

// do sends one JSON request. On a 2xx status the body is decoded into out;
// otherwise it is decoded as a gotrueError. Transport failures are returned
// as apperror.ErrUnavailable.
func (a *GoTrue) do(ctx context.Context, method, path, apiKey, bearer string, in, out any) (int, gotrueError, error) {
	var gerr gotrueError

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, gerr, fmt.Errorf("authority: encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return 0, gerr, fmt.Errorf("authority: building request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("credential authority request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, gerr, fmt.Errorf("%w: %v", apperror.Unavailable(gotrueName), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, gerr, fmt.Errorf("%w: reading response: %v", apperror.Unavailable(gotrueName), err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, gerr, fmt.Errorf("authority: decoding response: %w", err)
			}
		}
		return resp.StatusCode, gerr, nil
	}

	// Non-JSON error bodies still carry a useful message.
	if err := json.Unmarshal(raw, &gerr); err != nil {
		gerr.Message = strings.TrimSpace(string(raw))
	}
	return resp.StatusCode, gerr, nil
}

// unexpected classifies a status the caller did not handle. 5xx and 429
// mean the authority is struggling; anything else is a bug on one side.
func (a *GoTrue) unexpected(op string, status int, gerr gotrueError) error {
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s returned %d", apperror.Unavailable(gotrueName), op, status)
	}
	return fmt.Errorf("authority: %s returned %d: %s", op, status, gerr.text())
}

func isDuplicate(status int, gerr gotrueError) bool {
	if gerr.ErrorCode == "email_exists" || gerr.ErrorCode == "user_already_exists" {
		return true
	}
	if status == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(gerr.text()), "already been registered")
}
