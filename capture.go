package routeshot

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/routeshot/pkg/browser"
	"github.com/root4loot/routeshot/pkg/shot"
)

// capture navigates to route, screenshots it and writes the image.
// It always returns exactly one outcome for the route. seen is nil unless
// duplicate avoidance is enabled.
func (r *Runner) capture(ctx context.Context, ctrl browser.Controller, route Route, seen map[string]shot.Image) Result {
	result := Result{Route: route}

	if ctx.Err() != nil {
		return interrupted(result)
	}

	target := r.routeURL(route)
	log.Debugf("Navigating to %s", target)

	if err := ctrl.Navigate(ctx, target); err != nil {
		if ctx.Err() != nil {
			return interrupted(result)
		}
		return failed(result, newError(CodeNavigation, "failed to load "+target, err))
	}

	data, err := ctrl.Screenshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(result)
		}
		return failed(result, newError(CodeCapture, "failed to capture "+target, err))
	}
	img := shot.Image(data)

	if blank, err := img.IsBlank(); err != nil {
		log.Debugf("Could not inspect %s: %v", route.Name, err)
	} else if blank {
		result.Blank = true
		log.Warnf("%s looks blank, the page may not have rendered", route.Name)
	}

	if seen != nil {
		if dup := shot.MostSimilar(img, seen, r.Options.DuplicateThreshold); dup != "" {
			log.Warnf("Skipping %s, looks the same as %s", route.Name, dup)
			result.Status = StatusSkipped
			result.Reason = "duplicate of " + dup
			return result
		}
		seen[route.Name] = img
	}

	if r.Options.URLInImage {
		labeled, err := img.Label(labelText(target, route))
		if err != nil {
			log.Warnf("Could not add URL to %s: %v", route.Name, err)
		} else {
			img = labeled
		}
	}

	path, err := img.Save(r.Options.OutputDir, route.Name, r.Options.ImageExt())
	if err != nil {
		return failed(result, newError(CodeCapture, "failed to write "+route.Name, err))
	}

	log.Resultf("Captured %s -> %s", route.Name, path)
	result.Status = StatusCaptured
	result.Path = path
	return result
}

func (r *Runner) routeURL(route Route) string {
	return strings.TrimSuffix(r.Options.BaseURL, "/") + route.Path
}

// labelText is the origin and path of the page, without query or fragment.
func labelText(rawURL string, route Route) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, route.Path)
}

func failed(result Result, err *Error) Result {
	log.Errorf("%s: %v", result.Route.Name, err)
	result.Status = StatusFailed
	result.Reason = err.Message
	result.Err = err
	return result
}

func interrupted(result Result) Result {
	result.Status = StatusSkipped
	result.Reason = ReasonInterrupted
	return result
}
