package routeshot

import (
	"context"
	"errors"
	"os"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/routeshot/internal/auth"
	"github.com/root4loot/routeshot/internal/server"
	"github.com/root4loot/routeshot/pkg/browser"
	"github.com/root4loot/routeshot/pkg/shot"
)

// Lifecycle starts, awaits and stops the application being captured.
type Lifecycle interface {
	Start() error
	AwaitReady(ctx context.Context, baseURL string) error
	Stop() error
}

// Runner walks the route catalog once and captures every route it can.
type Runner struct {
	Options *Options
	Routes  []Route

	newBrowser func(browser.Options) (browser.Controller, error)
	server     Lifecycle
	auth       *auth.Authenticator
}

func init() {
	log.Init("routeshot")
}

// NewRunner returns a runner with default options and the built-in routes.
func NewRunner() *Runner {
	r, err := NewRunnerWithOptions(*DefaultOptions())
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return r
}

// NewRunnerWithOptions returns a runner for the given options.
func NewRunnerWithOptions(options Options) (*Runner, error) {
	SetLogLevel(&options)
	log.Debug("Creating new runner with options...")

	if err := options.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		Options:    &options,
		Routes:     DefaultRoutes(),
		newBrowser: browser.New,
		auth:       auth.New(options.authOptions()),
	}

	if options.ManageServer {
		r.server = server.NewManager(options.serverOptions())
	} else {
		r.server = server.NewAttached(options.ProbeTimeout)
	}

	return r, nil
}

// Run captures public routes, logs in, then captures protected routes.
// The browser and the server are released on every return path, including
// when ctx is cancelled. Per-route failures never make Run return an error;
// only a run that could not start, or was interrupted, does.
func (r *Runner) Run(ctx context.Context) (summary *Summary, err error) {
	summary = newSummary()
	defer summary.finish()

	if err := os.MkdirAll(r.Options.OutputDir, os.ModePerm); err != nil {
		summary.skipRemaining(r.Routes, ReasonAborted)
		return summary, newError(CodeOutputDir, "failed to create output directory", err)
	}

	ctrl, err := r.newBrowser(r.Options.browserOptions())
	if err != nil {
		summary.skipRemaining(r.Routes, ReasonAborted)
		return summary, newError(CodeBrowserInit, "failed to initialize browser", err)
	}
	log.Resultf("Browser initialized (%s, %dx%d)", r.Options.Backend, r.Options.CaptureWidth, r.Options.CaptureHeight)

	serverStarted := false
	defer func() {
		r.teardown(ctrl, serverStarted)
	}()

	if r.Options.ManageServer {
		log.Infof("Starting server with %q in %s", r.Options.ServerCommand, r.Options.ServerDir)
	}
	if err := r.server.Start(); err != nil {
		summary.skipRemaining(r.Routes, ReasonAborted)
		return summary, newError(CodeServerStart, "failed to start server", err)
	}
	serverStarted = true

	if err := r.server.AwaitReady(ctx, r.Options.BaseURL); err != nil {
		aborted := r.readinessError(ctx, err)
		if aborted.Code == CodeInterrupted {
			summary.skipRemaining(r.Routes, ReasonInterrupted)
		} else {
			summary.skipRemaining(r.Routes, ReasonAborted)
		}
		return summary, aborted
	}
	log.Resultf("Server is up at %s", r.Options.BaseURL)

	var seen map[string]shot.Image
	if r.Options.AvoidDuplicates {
		seen = make(map[string]shot.Image)
	}

	log.Infof("Capturing public pages...")
	for _, route := range PublicRoutes(r.Routes) {
		summary.add(r.capture(ctx, ctrl, route, seen))
	}

	protected := ProtectedRoutes(r.Routes)
	if len(protected) > 0 && ctx.Err() == nil {
		log.Infof("Logging in for protected pages...")
		summary.Authenticated = r.auth.Login(ctx, ctrl, r.Options.BaseURL, auth.Credentials{
			Email:    r.Options.Email,
			Password: r.Options.Password,
		})
	}

	if len(protected) > 0 {
		log.Infof("Capturing protected pages...")
	}
	for _, route := range protected {
		if ctx.Err() == nil && !summary.Authenticated {
			log.Warnf("Skipping %s, login required", route.Name)
			summary.add(Result{Route: route, Status: StatusSkipped, Reason: ReasonAuthRequired})
			continue
		}
		summary.add(r.capture(ctx, ctrl, route, seen))
	}

	if ctx.Err() != nil {
		return summary, newError(CodeInterrupted, "run interrupted", ctx.Err())
	}
	return summary, nil
}

func (r *Runner) readinessError(ctx context.Context, err error) *Error {
	switch {
	case ctx.Err() != nil:
		return newError(CodeInterrupted, "interrupted while waiting for the server", err)
	case errors.Is(err, server.ErrExited):
		return newError(CodeServerStart, "server exited before becoming ready", err)
	case !r.Options.ManageServer:
		return newError(CodeServerUnreachable, "server is not reachable, is it running?", err)
	default:
		return newError(CodeServerTimeout, "server did not become ready", err)
	}
}

// teardown closes the browser and then stops the server. Failures are only
// logged since the run is ending regardless.
func (r *Runner) teardown(ctrl browser.Controller, serverStarted bool) {
	if err := ctrl.Close(); err != nil {
		log.Warnf("Error closing browser: %v", err)
	} else {
		log.Resultf("Browser closed")
	}

	if !serverStarted {
		return
	}
	if err := r.server.Stop(); err != nil {
		log.Warnf("Error stopping server: %v", err)
	} else if r.Options.ManageServer {
		log.Resultf("Server stopped")
	}
}

// SetLogLevel sets the log level based on the options.
func SetLogLevel(options *Options) {
	if options.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
