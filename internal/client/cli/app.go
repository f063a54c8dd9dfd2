// Package cli is the terminal front end of the learning platform client.
//
// Commands can be run one at a time (learn login ada@example.com) or, with
// no arguments, from an interactive prompt that keeps the session alive
// between commands. Demo sessions only exist inside one process, so the
// prompt is the way to use demo mode for more than a single command.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/client/identityclient"
	"github.com/sakif/learning-platform/internal/client/modeselect"
	"github.com/sakif/learning-platform/internal/client/session"
	"github.com/sakif/learning-platform/internal/model"
)

// Selector is the subset of *modeselect.Selector the CLI drives.
type Selector interface {
	Refresh(ctx context.Context) model.HealthReport
	Recheck(ctx context.Context) (model.HealthReport, bool)
	Report() model.HealthReport
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Signup(ctx context.Context, req identityclient.SignupRequest) (*model.Session, error)
	Resume(ctx context.Context) (*model.Session, error)
	Logout(ctx context.Context) error
	Current() *model.Session
	LastDecision() modeselect.Decision
}

// App runs CLI commands against a Selector.
type App struct {
	sel    Selector
	reader *bufio.Reader
	out    io.Writer
}

// NewApp creates an App reading prompts from in and writing to out.
func NewApp(sel Selector, in io.Reader, out io.Writer) *App {
	return &App{sel: sel, reader: bufio.NewReader(in), out: out}
}

const usage = `Commands:
  health                         probe the identity service
  recheck                        probe again (rate limited)
  login  [email]                 log in, live or demo
  signup [-first-name N] [-country C] [email]
  whoami                         show the current session
  logout                         forget the session
  help                           this text
  exit | quit                    leave the prompt`

// Run executes one command, or starts the prompt when args is empty.
// It returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.sel.Refresh(ctx)

	if len(args) == 0 {
		a.resume(ctx, true)
		a.repl(ctx)
		return 0
	}

	if err := a.dispatch(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return 1
	}
	return 0
}

func (a *App) repl(ctx context.Context) {
	fmt.Fprintln(a.out, "Learning platform (type 'help' for commands)")
	for {
		fmt.Fprintf(a.out, "learn%s> ", a.status())
		line, err := a.reader.ReadString('\n')
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if fields[0] == "exit" || fields[0] == "quit" {
				fmt.Fprintln(a.out, "Bye!")
				return
			}
			if cmdErr := a.dispatch(ctx, fields[0], fields[1:]); cmdErr != nil {
				fmt.Fprintln(a.out, "error:", cmdErr)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out, "error:", err)
			}
			return
		}
	}
}

func (a *App) status() string {
	s := a.sel.Current()
	if s == nil {
		return ""
	}
	return fmt.Sprintf(" (%s %s)", s.Email, s.Mode)
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "health":
		a.printReport(a.sel.Report())
		return nil
	case "recheck":
		report, ran := a.sel.Recheck(ctx)
		if !ran {
			fmt.Fprintln(a.out, "recheck skipped, try again in a few seconds")
		}
		a.printReport(report)
		return nil
	case "login":
		return a.login(ctx, args)
	case "signup":
		return a.signup(ctx, args)
	case "whoami":
		return a.whoami(ctx)
	case "logout":
		if err := a.sel.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q (try 'help')", cmd)
}

func (a *App) printReport(r model.HealthReport) {
	fmt.Fprintf(a.out, "service:    %s\n", r.Reachable)
	if r.Err != "" {
		fmt.Fprintf(a.out, "reason:     %s\n", r.Err)
	}
	if r.Reachable == model.Reachable {
		fmt.Fprintf(a.out, "config:     url=%t anonKey=%t serviceKey=%t\n",
			r.Config.HasURL, r.Config.HasAnonKey, r.Config.HasServiceKey)
	}
	mode := model.ModeDemo
	if r.LiveViable() {
		mode = model.ModeLive
	}
	fmt.Fprintf(a.out, "next login: %s\n", mode)
}

func (a *App) login(ctx context.Context, args []string) error {
	email, err := a.emailArg(args)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	sess, err := a.sel.Login(ctx, email, string(password))
	if err != nil {
		return describe(err)
	}
	a.printSession(sess)
	return nil
}

func (a *App) signup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	fs.SetOutput(a.out)
	firstName := fs.String("first-name", "", "first name")
	country := fs.String("country", "", "country")
	if err := fs.Parse(args); err != nil {
		return err
	}

	email, err := a.emailArg(fs.Args())
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	sess, err := a.sel.Signup(ctx, identityclient.SignupRequest{
		Email:     email,
		Password:  string(password),
		FirstName: *firstName,
		Country:   *country,
	})
	if err != nil {
		return describe(err)
	}
	a.printSession(sess)
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	if a.sel.Current() == nil && !a.resume(ctx, false) {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	a.printSession(a.sel.Current())
	return nil
}

// resume restores a stored session. It reports whether one is active.
func (a *App) resume(ctx context.Context, announce bool) bool {
	sess, err := a.sel.Resume(ctx)
	switch {
	case err == nil:
		if announce {
			fmt.Fprintf(a.out, "Welcome back, %s.\n", sess.Email)
		}
		return true
	case errors.Is(err, apperror.ErrAuth):
		fmt.Fprintln(a.out, describe(err))
	case !errors.Is(err, session.ErrNoSession):
		fmt.Fprintln(a.out, "error:", err)
	}
	return false
}

func (a *App) printSession(s *model.Session) {
	if s == nil {
		return
	}
	if s.IsDemo() {
		d := a.sel.LastDecision()
		fmt.Fprintf(a.out, "DEMO MODE (%s): progress is not saved.\n", d.Reason)
	}
	fmt.Fprintf(a.out, "user:  %s\nemail: %s\nrole:  %s\nmode:  %s\n", s.UserID, s.Email, s.Role, s.Mode)
}

func (a *App) emailArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return getSimpleText(a.reader, "Email", a.out)
}

// describe turns typed errors into what the user should read.
func describe(err error) error {
	switch {
	case errors.Is(err, apperror.ErrAuth):
		return errors.New("your session is no longer valid, please log in again")
	case errors.Is(err, apperror.ErrConflict):
		return errors.New("an account with this email already exists")
	}
	return err
}
