package routeshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/root4loot/routeshot/internal/server"
	"github.com/root4loot/routeshot/pkg/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBrowser serves a login form at /login that redirects to /dashboard
// when loginWorks is set.
type fakeBrowser struct {
	mu         sync.Mutex
	navigated  []string
	current    string
	loginWorks bool
	closed     int

	failNavigate map[string]error // by path
	failShot     map[string]error // by path
	shot         func(path string) []byte
	onNavigate   func(path string)
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{loginWorks: true}
}

func (f *fakeBrowser) path() string {
	return strings.TrimPrefix(f.current, "http://localhost:3000")
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	f.current = url
	p := f.path()
	hook := f.onNavigate
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.failNavigate[p]
}

func (f *fakeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.path()
	if err := f.failShot[p]; err != nil {
		return nil, err
	}
	if f.shot != nil {
		return f.shot(p), nil
	}
	return testPNG(len(p)), nil
}

func (f *fakeBrowser) Fill(ctx context.Context, selector, value string) error {
	return nil
}

func (f *fakeBrowser) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginWorks && f.path() == "/login" {
		f.current = "http://localhost:3000/dashboard"
	}
	return nil
}

func (f *fakeBrowser) WaitVisible(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path() != "/login" {
		return fmt.Errorf("%s not found", selector)
	}
	return nil
}

func (f *fakeBrowser) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBrowser) visited(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.navigated {
		if strings.HasSuffix(u, path) {
			n++
		}
	}
	return n
}

type fakeServer struct {
	startErr error
	readyErr error
	started  int
	stopped  int
}

func (s *fakeServer) Start() error {
	s.started++
	return s.startErr
}

func (s *fakeServer) AwaitReady(ctx context.Context, baseURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.readyErr
}

func (s *fakeServer) Stop() error {
	s.stopped++
	return nil
}

// testPNG returns a small non-uniform image whose content depends on seed.
func testPNG(seed int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * seed), uint8(y * 16), uint8(seed), 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func flatPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func testOptions(t *testing.T) Options {
	t.Helper()
	o := *DefaultOptions()
	o.OutputDir = filepath.Join(t.TempDir(), "screenshots")
	o.URLInImage = false
	o.LoginTimeout = 200 * time.Millisecond
	return o
}

func newTestRunner(t *testing.T, o Options, fb *fakeBrowser, srv *fakeServer) *Runner {
	t.Helper()
	r, err := NewRunnerWithOptions(o)
	require.NoError(t, err)
	r.newBrowser = func(browser.Options) (browser.Controller, error) {
		return fb, nil
	}
	r.server = srv
	return r
}

func assertOneOutcomePerRoute(t *testing.T, s *Summary, routes []Route) {
	t.Helper()
	require.Len(t, s.Results, len(routes))
	for _, route := range routes {
		n := 0
		for _, res := range s.Results {
			if res.Route.Name == route.Name {
				n++
			}
		}
		assert.Equal(t, 1, n, "outcomes for %s", route.Name)
	}
	assert.Equal(t, len(routes), s.Count(StatusCaptured)+s.Count(StatusFailed)+s.Count(StatusSkipped))
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunCapturesAllRoutes(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	o := testOptions(t)
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assertOneOutcomePerRoute(t, summary, r.Routes)
	assert.True(t, summary.Authenticated)
	assert.Equal(t, len(r.Routes), summary.Count(StatusCaptured))
	assert.FileExists(t, filepath.Join(o.OutputDir, "login.png"))
	assert.FileExists(t, filepath.Join(o.OutputDir, "dashboard.png"))
	assert.Len(t, outputFiles(t, o.OutputDir), len(r.Routes))

	res, ok := summary.Result("approvals")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(o.OutputDir, "approvals.png"), res.Path)

	assert.Equal(t, 1, fb.closed)
	assert.Equal(t, 1, srv.started)
	assert.Equal(t, 1, srv.stopped)
	assert.False(t, summary.Finished.Before(summary.Started))
}

func TestRunPublicBeforeLoginBeforeProtected(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	r := newTestRunner(t, testOptions(t), fb, srv)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"/login", "/register", // public
		"/login", // login flow
		"/dashboard", "/projects/create", "/analytics", "/evaluations",
		"/users", "/profile", "/settings", "/approvals",
	}
	var got []string
	for _, u := range fb.navigated {
		got = append(got, strings.TrimPrefix(u, "http://localhost:3000"))
	}
	assert.Equal(t, want, got)
}

func TestRunLoginFailureSkipsProtectedRoutes(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	fb.loginWorks = false
	o := testOptions(t)
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assertOneOutcomePerRoute(t, summary, r.Routes)
	assert.False(t, summary.Authenticated)
	assert.Equal(t, len(PublicRoutes(r.Routes)), summary.Count(StatusCaptured))
	assert.Equal(t, len(ProtectedRoutes(r.Routes)), summary.Count(StatusSkipped))

	for _, route := range ProtectedRoutes(r.Routes) {
		res, _ := summary.Result(route.Name)
		assert.Equal(t, ReasonAuthRequired, res.Reason)
		assert.Zero(t, fb.visited(route.Path), "navigated to %s", route.Path)
	}
	assert.FileExists(t, filepath.Join(o.OutputDir, "login.png"))
	assert.NoFileExists(t, filepath.Join(o.OutputDir, "dashboard.png"))
}

func TestRunAbortsBeforeCapture(t *testing.T) {
	tests := []struct {
		name     string
		manage   bool
		readyErr error
		code     string
	}{
		{"timeout", true, fmt.Errorf("%w: gave up", server.ErrNotReady), CodeServerTimeout},
		{"exited", true, fmt.Errorf("%w: status 1", server.ErrExited), CodeServerStart},
		{"unreachable", false, fmt.Errorf("%w: refused", server.ErrNotReady), CodeServerUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, srv := newFakeBrowser(), &fakeServer{readyErr: tt.readyErr}
			o := testOptions(t)
			o.ManageServer = tt.manage
			r := newTestRunner(t, o, fb, srv)

			summary, err := r.Run(context.Background())
			require.Error(t, err)
			assert.True(t, IsCode(err, tt.code), "got %v", err)
			assert.ErrorIs(t, err, ErrAborted)

			assertOneOutcomePerRoute(t, summary, r.Routes)
			assert.Equal(t, len(r.Routes), summary.Count(StatusSkipped))
			assert.Empty(t, fb.navigated)
			assert.Empty(t, outputFiles(t, o.OutputDir))
			assert.Equal(t, 1, fb.closed)
			assert.Equal(t, 1, srv.stopped)
		})
	}
}

func TestRunBrowserInitFailure(t *testing.T) {
	srv := &fakeServer{}
	r := newTestRunner(t, testOptions(t), newFakeBrowser(), srv)
	r.newBrowser = func(browser.Options) (browser.Controller, error) {
		return nil, browser.ErrLaunch
	}

	summary, err := r.Run(context.Background())
	assert.True(t, IsCode(err, CodeBrowserInit))
	assert.ErrorIs(t, err, browser.ErrLaunch)
	assert.Zero(t, srv.started)
	assert.Zero(t, srv.stopped)
	assert.Equal(t, len(r.Routes), summary.Count(StatusSkipped))
}

func TestRunServerStartFailure(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{startErr: errors.New("npm: not found")}
	r := newTestRunner(t, testOptions(t), fb, srv)

	summary, err := r.Run(context.Background())
	assert.True(t, IsCode(err, CodeServerStart))
	assert.Equal(t, 1, fb.closed)
	assert.Zero(t, srv.stopped)
	assertOneOutcomePerRoute(t, summary, r.Routes)
}

func TestRunOutputDirFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	fb, srv := newFakeBrowser(), &fakeServer{}
	o := testOptions(t)
	o.OutputDir = filepath.Join(file, "screenshots")
	r := newTestRunner(t, o, fb, srv)

	_, err := r.Run(context.Background())
	assert.True(t, IsCode(err, CodeOutputDir))
	assert.Zero(t, srv.started)
	assert.Zero(t, fb.closed)
}

func TestRunRouteFailuresDoNotStopTheRun(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	fb.failNavigate = map[string]error{"/analytics": errors.New("net::ERR_ABORTED")}
	fb.failShot = map[string]error{"/register": errors.New("target closed")}
	o := testOptions(t)
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assertOneOutcomePerRoute(t, summary, r.Routes)
	assert.Equal(t, 2, summary.Count(StatusFailed))
	assert.Equal(t, len(r.Routes)-2, summary.Count(StatusCaptured))

	analytics, _ := summary.Result("analytics")
	assert.True(t, IsCode(analytics.Err, CodeNavigation))
	register, _ := summary.Result("register")
	assert.True(t, IsCode(register.Err, CodeCapture))

	assert.NoFileExists(t, filepath.Join(o.OutputDir, "analytics.png"))
	assert.FileExists(t, filepath.Join(o.OutputDir, "evaluations.png"))
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb, srv := newFakeBrowser(), &fakeServer{}
	fb.onNavigate = func(path string) {
		if path == "/analytics" {
			cancel()
		}
	}
	o := testOptions(t)
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(ctx)
	assert.True(t, IsCode(err, CodeInterrupted))
	assert.NotErrorIs(t, err, ErrAborted)

	assertOneOutcomePerRoute(t, summary, r.Routes)
	for _, name := range []string{"analytics", "evaluations", "approvals"} {
		res, _ := summary.Result(name)
		assert.Equal(t, StatusSkipped, res.Status, name)
		assert.Equal(t, ReasonInterrupted, res.Reason, name)
	}
	assert.FileExists(t, filepath.Join(o.OutputDir, "create_project.png"))
	assert.Zero(t, fb.visited("/approvals"))
	assert.Equal(t, 1, fb.closed)
	assert.Equal(t, 1, srv.stopped)
}

func TestRunOverwritesPreviousCaptures(t *testing.T) {
	o := testOptions(t)
	for i := 0; i < 2; i++ {
		r := newTestRunner(t, o, newFakeBrowser(), &fakeServer{})
		_, err := r.Run(context.Background())
		require.NoError(t, err)
	}
	assert.Len(t, outputFiles(t, o.OutputDir), len(DefaultRoutes()))
}

func TestRunAvoidsDuplicates(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	same, n := testPNG(200), 0
	fb.shot = func(path string) []byte {
		if path == "/profile" || path == "/settings" {
			return same
		}
		n++
		return testPNG(n)
	}
	o := testOptions(t)
	o.AvoidDuplicates = true
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	settings, _ := summary.Result("settings")
	assert.Equal(t, StatusSkipped, settings.Status)
	assert.Equal(t, "duplicate of profile", settings.Reason)
	assert.NoFileExists(t, filepath.Join(o.OutputDir, "settings.png"))
	assert.FileExists(t, filepath.Join(o.OutputDir, "profile.png"))
}

func TestRunFlagsBlankCaptures(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	fb.shot = func(path string) []byte {
		if path == "/users" {
			return flatPNG()
		}
		return testPNG(len(path))
	}
	o := testOptions(t)
	r := newTestRunner(t, o, fb, srv)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	users, _ := summary.Result("user_management")
	assert.Equal(t, StatusCaptured, users.Status)
	assert.True(t, users.Blank)

	login, _ := summary.Result("login")
	assert.False(t, login.Blank)
}

func TestRunWritesRawViewportByDefault(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	o := *DefaultOptions()
	o.OutputDir = filepath.Join(t.TempDir(), "screenshots")
	o.LoginTimeout = 200 * time.Millisecond
	r := newTestRunner(t, o, fb, srv)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(o.OutputDir, "login.png"))
	require.NoError(t, err)
	assert.Equal(t, testPNG(len("/login")), data)
}

func TestRunLabelsCaptures(t *testing.T) {
	fb, srv := newFakeBrowser(), &fakeServer{}
	o := testOptions(t)
	o.URLInImage = true
	r := newTestRunner(t, o, fb, srv)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(o.OutputDir, "login.png"))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Greater(t, cfg.Height, 16)
}

func TestLabelText(t *testing.T) {
	route := Route{Name: "settings", Path: "/settings"}
	assert.Equal(t, "http://localhost:3000/settings", labelText("http://localhost:3000/settings?tab=2#top", route))
	assert.Equal(t, "https://app.example.com/settings", labelText("https://app.example.com/settings", route))
	assert.Equal(t, "not a url", labelText("not a url", route))
}

func TestNewRunnerRejectsInvalidOptions(t *testing.T) {
	o := *DefaultOptions()
	o.BaseURL = "localhost:3000"

	_, err := NewRunnerWithOptions(o)
	assert.True(t, IsCode(err, CodeInvalidOptions))
	assert.ErrorIs(t, err, ErrAborted)
}

func TestNewRunnerPicksServerLifecycle(t *testing.T) {
	o := *DefaultOptions()
	r, err := NewRunnerWithOptions(o)
	require.NoError(t, err)
	assert.IsType(t, &server.Manager{}, r.server)

	o.ManageServer = false
	r, err = NewRunnerWithOptions(o)
	require.NoError(t, err)
	assert.IsType(t, &server.Attached{}, r.server)
}
