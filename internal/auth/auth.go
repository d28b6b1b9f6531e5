package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/root4loot/goutils/log"
)

// Credentials is the account used to reach protected routes.
type Credentials struct {
	Email    string
	Password string
}

// Session is the subset of a browser controller the login flow drives.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	URL(ctx context.Context) (string, error)
}

// Options describes the login form and how long to wait for it.
type Options struct {
	LoginPath        string        // route holding the login form
	SuccessPath      string        // route the app redirects to after login
	EmailSelector    string        // email input
	PasswordSelector string        // password input
	SubmitSelector   string        // submit button
	Timeout          time.Duration // bound for the form to appear and for the redirect
	PollInterval     time.Duration // how often the current URL is checked
}

// DefaultOptions matches the application's login form.
func DefaultOptions() Options {
	return Options{
		LoginPath:        "/login",
		SuccessPath:      "/dashboard",
		EmailSelector:    `input[name="email"]`,
		PasswordSelector: `input[name="password"]`,
		SubmitSelector:   `button[type="submit"]`,
		Timeout:          10 * time.Second,
		PollInterval:     250 * time.Millisecond,
	}
}

// Authenticator signs in through the login form.
type Authenticator struct {
	opts Options
}

// New returns an Authenticator using opts.
func New(opts Options) *Authenticator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Authenticator{opts: opts}
}

// Login signs in and reports whether the app redirected to the success route.
// A failed login is expected when no test account is seeded, so it is only
// logged as a warning.
func (a *Authenticator) Login(ctx context.Context, s Session, baseURL string, creds Credentials) bool {
	if err := a.Attempt(ctx, s, baseURL, creds); err != nil {
		log.Warnf("Could not log in, protected routes will be skipped: %v", err)
		return false
	}
	log.Resultf("Logged in as %s", creds.Email)
	return true
}

// Attempt runs the login flow and returns why it failed, if it did.
func (a *Authenticator) Attempt(ctx context.Context, s Session, baseURL string, creds Credentials) error {
	loginURL := strings.TrimSuffix(baseURL, "/") + a.opts.LoginPath
	if err := s.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	formCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	if err := s.WaitVisible(formCtx, a.opts.EmailSelector); err != nil {
		return fmt.Errorf("login form not found: %w", err)
	}
	if err := s.Fill(formCtx, a.opts.EmailSelector, creds.Email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := s.Fill(formCtx, a.opts.PasswordSelector, creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := s.Click(formCtx, a.opts.SubmitSelector); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	return a.awaitRedirect(ctx, s)
}

// awaitRedirect polls the current URL until it contains the success path.
func (a *Authenticator) awaitRedirect(ctx context.Context, s Session) error {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	var last string
	for {
		if u, err := s.URL(ctx); err == nil {
			last = u
			if strings.Contains(u, a.opts.SuccessPath) {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("no redirect to %s within %s (last URL %q): %w", a.opts.SuccessPath, a.opts.Timeout, last, ctx.Err())
		}
	}
}
