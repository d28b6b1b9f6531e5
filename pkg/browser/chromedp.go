package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

type chromedpController struct {
	opts        Options
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	loaded      bool
	once        sync.Once
	closeErr    error
}

func newChromedpController(opts Options) (*chromedpController, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox)
	for name, value := range launchFlags(opts) {
		if value == "" {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		}
	}
	if opts.Bin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.Bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx)

	c := &chromedpController{
		opts:        opts,
		tab:         tab,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	// chromedp starts the browser lazily on the first Run.
	if err := chromedp.Run(tab, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height))); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	log.Debugf("Browser launched via chromedp")

	return c, nil
}

// run executes actions on the tab, aborting when ctx is done without
// cancelling the tab itself.
func (c *chromedpController) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.tab)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *chromedpController) Navigate(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx, c.opts.NavigationTimeout)
	defer cancel()

	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	c.loaded = true

	return c.opts.Settle.Settle(ctx, c)
}

func (c *chromedpController) Screenshot(ctx context.Context) ([]byte, error) {
	if !c.loaded {
		return nil, ErrNoPage
	}

	var img []byte
	action := chromedp.CaptureScreenshot(&img)
	if c.opts.Format == FormatJPEG {
		action = chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			img, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(int64(c.opts.Quality)).
				Do(ctx)
			return err
		})
	}

	if err := c.run(ctx, action); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return img, nil
}

func (c *chromedpController) Fill(ctx context.Context, selector, value string) error {
	return c.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (c *chromedpController) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *chromedpController) WaitVisible(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (c *chromedpController) WaitLoad(ctx context.Context) error {
	return c.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// WaitStable polls the size of the serialized DOM every d until two
// consecutive samples match.
func (c *chromedpController) WaitStable(ctx context.Context, d time.Duration) error {
	const expr = `document.documentElement ? document.documentElement.outerHTML.length : 0`

	var prev int
	if err := c.run(ctx, chromedp.Evaluate(expr, &prev)); err != nil {
		return err
	}

	for {
		if err := Sleep(ctx, d); err != nil {
			return err
		}

		var cur int
		if err := c.run(ctx, chromedp.Evaluate(expr, &cur)); err != nil {
			return err
		}
		if cur == prev {
			return nil
		}
		prev = cur
	}
}

func (c *chromedpController) URL(ctx context.Context) (string, error) {
	var u string
	if err := c.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// Close shuts the browser down gracefully, then releases the allocator which
// kills the process if it is still running.
func (c *chromedpController) Close() error {
	c.once.Do(func() {
		c.closeErr = chromedp.Cancel(c.tab)
		c.cancelTab()
		c.cancelAlloc()
	})
	return c.closeErr
}
