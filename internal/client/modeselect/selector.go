// Package modeselect decides whether a login or signup runs live against
// the identity service or falls back to a locally synthesized demo session.
//
// POLICY:
//
//	probe not run yet          → demo (probe_unknown)
//	service unreachable        → demo (unreachable)
//	reachable, secrets missing → demo (config_incomplete)
//	live attempt failed        → demo (live_failed)
//	live attempt succeeded     → live
//
// A ValidationError is never swallowed, since the input is wrong in any
// mode. Signup also surfaces a ConflictError (the email is taken).
// Everything else degrades to demo so the user can always get past login.
//
// An empty email is rejected before any probe, network call or synthesis.
package modeselect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/client/identityclient"
	"github.com/sakif/learning-platform/internal/client/session"
	"github.com/sakif/learning-platform/internal/model"
	"github.com/sakif/learning-platform/internal/role"
)

// Decision reasons.
const (
	ReasonLive             = "live"
	ReasonProbeUnknown     = "probe_unknown"
	ReasonUnreachable      = "unreachable"
	ReasonConfigIncomplete = "config_incomplete"
	ReasonLiveFailed       = "live_failed"
)

// demoNamespace scopes the name-based UUIDs of demo users.
var demoNamespace = uuid.MustParse("5b0e8f6a-3c1d-5e2f-9a47-2d6c1b8e0f31")

// Prober runs one capability probe.
type Prober interface {
	CheckHealth(ctx context.Context) model.HealthReport
}

// Identity is the live identity service as seen by the client.
type Identity interface {
	Signup(ctx context.Context, req identityclient.SignupRequest) (string, error)
	RetryProfileWrite(ctx context.Context, req identityclient.RetryRequest) (*model.UserProfile, error)
	Login(ctx context.Context, email, password string) (*identityclient.LoginResult, error)
	Profile(ctx context.Context, accessToken string) (*model.UserProfile, error)
}

// Decision records why the last session has the mode it has.
type Decision struct {
	Mode   model.Mode
	Reason string
	// Err is the live failure that caused a fallback, if any.
	Err string
	At  time.Time
}

// Options tunes a Selector.
type Options struct {
	// RecheckInterval is the minimum spacing of manual rechecks.
	// Defaults to 5 seconds.
	RecheckInterval time.Duration
}

// Selector owns the client's current session and the last health report.
//
// The mutex guards state only; it is never held across a network call, so
// probes and logins may run concurrently.
type Selector struct {
	prober   Prober
	identity Identity
	store    session.Store
	recheck  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	report   model.HealthReport
	current  *model.Session
	decision Decision
}

// New creates a Selector. The health report starts out Unknown until
// Refresh runs.
func New(prober Prober, identity Identity, store session.Store, opts Options, logger *slog.Logger) *Selector {
	interval := opts.RecheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Selector{
		prober:   prober,
		identity: identity,
		store:    store,
		recheck:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh probes the service and records the report. Called at start-up.
func (s *Selector) Refresh(ctx context.Context) model.HealthReport {
	report := s.prober.CheckHealth(ctx)

	s.mu.Lock()
	s.report = report
	s.mu.Unlock()

	s.logger.Info("capability probe",
		slog.String("reachable", report.Reachable.String()),
		slog.Bool("configComplete", report.ConfigComplete),
	)
	return report
}

// Recheck is the manual "try the backend again" trigger. Calls closer
// together than the recheck interval return the previous report and false.
func (s *Selector) Recheck(ctx context.Context) (model.HealthReport, bool) {
	if !s.recheck.Allow() {
		return s.Report(), false
	}
	return s.Refresh(ctx), true
}

// Report returns the last health report.
func (s *Selector) Report() model.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Current returns a copy of the active session, or nil.
func (s *Selector) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// LastDecision returns why the active session has its mode.
func (s *Selector) LastDecision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

// Login starts a session for email.
//
// In demo mode any password is accepted, including an empty one. In live
// mode the password policy belongs to the identity service.
func (s *Selector) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	reason := s.fallbackReason()
	var liveErr error
	if reason == "" {
		res, err := s.identity.Login(ctx, email, password)
		if err == nil {
			sess, liveStartErr := s.startLive(ctx, res)
			if liveStartErr == nil {
				return sess, nil
			}
			err = liveStartErr
		}
		if errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		reason, liveErr = ReasonLiveFailed, err
	}

	return s.startDemo(ctx, email, role.Infer(email), reason, liveErr), nil
}

// Signup creates an account, then logs it in.
//
// A live signup always yields a student, whatever the email. Only the demo
// path infers a role from the email.
func (s *Selector) Signup(ctx context.Context, req identityclient.SignupRequest) (*model.Session, error) {
	req.Email = model.NormalizeEmail(req.Email)
	if req.Email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	reason := s.fallbackReason()
	var liveErr error
	if reason == "" {
		sess, err := s.liveSignup(ctx, req)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		reason, liveErr = ReasonLiveFailed, err
	}

	r := role.InferSignup(role.SignupPayload{Email: req.Email, FirstName: req.FirstName, Country: req.Country})
	return s.startDemo(ctx, req.Email, r, reason, liveErr), nil
}

func (s *Selector) liveSignup(ctx context.Context, req identityclient.SignupRequest) (*model.Session, error) {
	_, err := s.identity.Signup(ctx, req)
	if errors.Is(err, apperror.ErrPartialFailure) {
		err = s.retryProfile(ctx, req, err)
	}
	if err != nil {
		return nil, err
	}

	res, err := s.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.startLive(ctx, res)
}

// retryProfile makes one attempt to finish a partial signup. The userId
// travels in the error's Field.
func (s *Selector) retryProfile(ctx context.Context, req identityclient.SignupRequest, partial error) error {
	var appErr *apperror.AppError
	if !errors.As(partial, &appErr) || appErr.Field == "" {
		return partial
	}

	s.logger.Warn("signup partially failed, retrying profile write", slog.String("userID", appErr.Field))
	_, err := s.identity.RetryProfileWrite(ctx, identityclient.RetryRequest{
		UserID:    appErr.Field,
		Email:     req.Email,
		FirstName: req.FirstName,
		Country:   req.Country,
	})
	return err
}

// Resume restores a stored live session at start-up.
//
// The token is checked against the service. A rejected token clears the
// store and returns an AuthError. If the service cannot answer, the stored
// session is kept as is.
func (s *Selector) Resume(ctx context.Context) (*model.Session, error) {
	stored, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := s.identity.Profile(ctx, stored.AccessToken)
	switch {
	case err == nil:
		stored.Role = profile.Role
		stored.Email = profile.Email
		if err := s.store.Save(ctx, stored); err != nil {
			s.logger.Warn("resume: could not persist refreshed session", slog.String("error", err.Error()))
		}
	case errors.Is(err, apperror.ErrAuth):
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.logger.Warn("resume: could not clear session", slog.String("error", clearErr.Error()))
		}
		s.set(nil, Decision{})
		return nil, apperror.Unauthorized()
	default:
		s.logger.Warn("resume: service did not confirm session, keeping it",
			slog.String("userID", stored.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.set(stored, Decision{Mode: model.ModeLive, Reason: ReasonLive, At: s.now()})
	return stored, nil
}

// Logout forgets the active session in memory and in the store.
func (s *Selector) Logout(ctx context.Context) error {
	s.set(nil, Decision{})
	return s.store.Clear(ctx)
}

// fallbackReason returns "" when the last report allows a live attempt.
func (s *Selector) fallbackReason() string {
	report := s.Report()
	switch {
	case report.Reachable == model.ReachabilityUnknown:
		return ReasonProbeUnknown
	case report.Reachable != model.Reachable:
		return ReasonUnreachable
	case !report.ConfigComplete:
		return ReasonConfigIncomplete
	}
	return ""
}

func (s *Selector) startLive(ctx context.Context, res *identityclient.LoginResult) (*model.Session, error) {
	if res == nil || res.Profile == nil || res.AccessToken == "" {
		return nil, apperror.Unavailable("identity service")
	}

	sess := &model.Session{
		UserID:      res.Profile.UserID,
		Email:       res.Profile.Email,
		Role:        res.Profile.Role,
		AccessToken: res.AccessToken,
		Mode:        model.ModeLive,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		s.logger.Warn("could not persist live session", slog.String("error", err.Error()))
	}

	s.set(sess, Decision{Mode: model.ModeLive, Reason: ReasonLive, At: s.now()})
	out := *sess
	return &out, nil
}

func (s *Selector) startDemo(ctx context.Context, email string, r model.Role, reason string, liveErr error) *model.Session {
	sess := Synthesize(email, r)

	// A stored live session belongs to whoever logged in before.
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("could not clear stored session", slog.String("error", err.Error()))
	}

	d := Decision{Mode: model.ModeDemo, Reason: reason, At: s.now()}
	attrs := []any{slog.String("reason", reason)}
	if liveErr != nil {
		d.Err = liveErr.Error()
		attrs = append(attrs, slog.String("error", d.Err))
	}
	s.logger.Warn("using demo session", attrs...)

	s.set(sess, d)
	out := *sess
	return &out
}

func (s *Selector) set(sess *model.Session, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.decision = d
}

// Synthesize builds a demo session. The userId depends only on the
// normalized email, so logging in again with the same email resumes the
// same demo identity.
func Synthesize(email string, r model.Role) *model.Session {
	email = model.NormalizeEmail(email)
	return &model.Session{
		UserID: "demo-" + uuid.NewSHA1(demoNamespace, []byte(email)).String(),
		Email:  email,
		Role:   r,
		Mode:   model.ModeDemo,
	}
}
