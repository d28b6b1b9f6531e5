package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Supported backends.
const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
)

// Supported image formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

var (
	// ErrLaunch is returned when the browser binary is missing or cannot be started.
	ErrLaunch = errors.New("browser launch failed")

	// ErrNoPage is returned by Screenshot when nothing has been navigated to yet.
	ErrNoPage = errors.New("no page loaded")
)

// Controller owns a single headless browser session with one tab.
// It is not safe for concurrent use.
type Controller interface {
	// Navigate loads url and blocks until the configured Settler considers the page ready.
	Navigate(ctx context.Context, url string) error
	// Screenshot returns the current viewport encoded in the configured format.
	Screenshot(ctx context.Context) ([]byte, error)
	// Fill types value into the first element matching selector.
	Fill(ctx context.Context, selector, value string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// WaitVisible blocks until an element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) error
	// URL returns the location of the current page.
	URL(ctx context.Context) (string, error)
	// Close releases the browser. It is idempotent.
	Close() error
}

// Options configures a Controller.
type Options struct {
	Backend           string        // rod or chromedp
	Bin               string        // Chrome/Chromium binary, looked up when empty
	Width             int           // viewport width
	Height            int           // viewport height
	Format            string        // png or jpeg
	Quality           int           // jpeg quality (1-100)
	NavigationTimeout time.Duration // bound for navigate + settle
	Settle            Settler       // page readiness strategy, FixedDelay(3s) when nil
	DisableImages     bool          // do not load images, for faster captures of layout only
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Backend:           BackendRod,
		Width:             1920,
		Height:            1080,
		Format:            FormatPNG,
		Quality:           90,
		NavigationTimeout: 30 * time.Second,
		Settle:            FixedDelay(3 * time.Second),
	}
}

// New launches a headless browser using the backend named in opts.
// Anything acquired before a failure is released before returning.
func New(opts Options) (Controller, error) {
	if opts.Settle == nil {
		opts.Settle = FixedDelay(3 * time.Second)
	}

	switch opts.Backend {
	case BackendRod, "":
		return newRodController(opts)
	case BackendChromedp:
		return newChromedpController(opts)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrLaunch, opts.Backend)
	}
}

// chromeFlags are the switches applied to every launched browser so it runs
// inside containers and CI runners without a display.
var chromeFlags = []string{
	"disable-gpu",
	"disable-dev-shm-usage",
	"disable-extensions",
	"disable-plugins",
}

// launchFlags returns every switch for a browser launched with opts. Switches
// without a value map to "".
func launchFlags(opts Options) map[string]string {
	m := map[string]string{
		"window-size": fmt.Sprintf("%d,%d", opts.Width, opts.Height),
	}
	for _, f := range chromeFlags {
		m[f] = ""
	}
	if opts.DisableImages {
		m["blink-settings"] = "imagesEnabled=false"
	}
	return m
}
