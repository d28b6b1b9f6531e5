package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

type rodController struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	loaded   bool
	once     sync.Once
	closeErr error
}

func newRodController(opts Options) (*rodController, error) {
	bin := opts.Bin
	if bin == "" {
		path, has := launcher.LookPath()
		if !has {
			return nil, fmt.Errorf("%w: no Chrome or Chromium binary found", ErrLaunch)
		}
		bin = path
	}

	l := launcher.New().
		Headless(true).
		Bin(bin).
		NoSandbox(true)

	for name, value := range launchFlags(opts) {
		if value == "" {
			l.Set(flags.Flag(name))
		} else {
			l.Set(flags.Flag(name), value)
		}
	}

	c := &rodController{opts: opts, launcher: l}

	controlURL, err := l.Launch()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	log.Debugf("Browser launched with %s (%s)", bin, controlURL)

	c.browser = rod.New().ControlURL(controlURL)
	if err := c.browser.Connect(); err != nil {
		c.browser = nil
		c.Close()
		return nil, fmt.Errorf("%w: connect: %v", ErrLaunch, err)
	}

	c.page, err = c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: open tab: %v", ErrLaunch, err)
	}

	viewport := &proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}
	if err := c.page.SetViewport(viewport); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: set viewport: %v", ErrLaunch, err)
	}

	return c, nil
}

func (c *rodController) Navigate(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx, c.opts.NavigationTimeout)
	defer cancel()

	if err := c.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	c.loaded = true

	return c.opts.Settle.Settle(ctx, c)
}

func (c *rodController) Screenshot(ctx context.Context) ([]byte, error) {
	if !c.loaded {
		return nil, ErrNoPage
	}

	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if c.opts.Format == FormatJPEG {
		quality := c.opts.Quality
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = &quality
	}

	img, err := c.page.Context(ctx).Screenshot(false, req)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return img, nil
}

func (c *rodController) Fill(ctx context.Context, selector, value string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Input(value)
}

func (c *rodController) Click(ctx context.Context, selector string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (c *rodController) WaitVisible(ctx context.Context, selector string) error {
	el, err := c.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.WaitVisible()
}

func (c *rodController) WaitLoad(ctx context.Context) error {
	return c.page.Context(ctx).WaitLoad()
}

func (c *rodController) WaitStable(ctx context.Context, d time.Duration) error {
	return c.page.Context(ctx).WaitDOMStable(d, 0)
}

func (c *rodController) URL(ctx context.Context) (string, error) {
	info, err := c.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Close closes the tab and the browser connection, then kills the browser
// process and removes its profile directory.
func (c *rodController) Close() error {
	c.once.Do(func() {
		if c.page != nil {
			_ = c.page.Close()
		}
		if c.browser != nil {
			c.closeErr = c.browser.Close()
		}
		// Cleanup blocks until the process exits, so only a started launcher is cleaned up.
		if c.launcher != nil && c.launcher.PID() != 0 {
			c.launcher.Kill()
			c.launcher.Cleanup()
		}
	})
	return c.closeErr
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
