package browser

import (
	"context"
	"fmt"
	"time"
)

// Settle strategy names accepted by NewSettler.
const (
	SettleFixed    = "fixed"
	SettleLoad     = "load"
	SettleStable   = "stable"
	SettleSelector = "selector"
)

// Page is the part of a Controller a Settler needs.
type Page interface {
	WaitLoad(ctx context.Context) error
	WaitStable(ctx context.Context, d time.Duration) error
	WaitVisible(ctx context.Context, selector string) error
}

// Settler decides when a freshly navigated page is ready to be captured.
type Settler interface {
	Settle(ctx context.Context, p Page) error
}

// SettleFunc adapts a function to the Settler interface.
type SettleFunc func(ctx context.Context, p Page) error

func (f SettleFunc) Settle(ctx context.Context, p Page) error { return f(ctx, p) }

// FixedDelay treats the page as loaded once d has elapsed.
func FixedDelay(d time.Duration) Settler {
	return SettleFunc(func(ctx context.Context, _ Page) error {
		return Sleep(ctx, d)
	})
}

// AfterLoad waits for the load event and then for d.
func AfterLoad(d time.Duration) Settler {
	return SettleFunc(func(ctx context.Context, p Page) error {
		if err := p.WaitLoad(ctx); err != nil {
			return fmt.Errorf("wait load: %w", err)
		}
		return Sleep(ctx, d)
	})
}

// DOMStable waits until the DOM stops changing for d.
func DOMStable(d time.Duration) Settler {
	return SettleFunc(func(ctx context.Context, p Page) error {
		if err := p.WaitStable(ctx, d); err != nil {
			return fmt.Errorf("wait stable: %w", err)
		}
		return nil
	})
}

// SelectorVisible waits until selector is visible.
func SelectorVisible(selector string) Settler {
	return SettleFunc(func(ctx context.Context, p Page) error {
		if err := p.WaitVisible(ctx, selector); err != nil {
			return fmt.Errorf("wait for %q: %w", selector, err)
		}
		return nil
	})
}

// NewSettler builds a Settler from its configured name.
func NewSettler(strategy string, delay time.Duration, selector string) (Settler, error) {
	switch strategy {
	case SettleFixed, "":
		return FixedDelay(delay), nil
	case SettleLoad:
		return AfterLoad(delay), nil
	case SettleStable:
		if delay <= 0 {
			return nil, fmt.Errorf("stable settle needs a positive delay")
		}
		return DOMStable(delay), nil
	case SettleSelector:
		if selector == "" {
			return nil, fmt.Errorf("selector settle needs a selector")
		}
		return SelectorVisible(selector), nil
	default:
		return nil, fmt.Errorf("unknown settle strategy %q", strategy)
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
