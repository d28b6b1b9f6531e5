package routeshot

import (
	"time"

	"github.com/root4loot/goutils/log"
)

// Status is the outcome of one route.
type Status int

const (
	StatusCaptured Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusCaptured:
		return "captured"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Skip reasons.
const (
	ReasonAuthRequired = "authentication required"
	ReasonInterrupted  = "interrupted"
	ReasonAborted      = "run aborted"
)

// Result is the outcome of capturing one route.
type Result struct {
	Route  Route
	Status Status
	Path   string // written file, set when captured
	Reason string // why the route failed or was skipped
	Err    error  // underlying failure, set when failed
	Blank  bool   // the capture is a single flat colour
}

// Summary aggregates a run.
type Summary struct {
	Results       []Result
	Authenticated bool
	Started       time.Time
	Finished      time.Time
}

func newSummary() *Summary {
	return &Summary{Started: time.Now()}
}

func (s *Summary) finish() {
	s.Finished = time.Now()
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
}

// Count returns how many routes ended with status.
func (s *Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Result returns the outcome recorded for the named route.
func (s *Summary) Result(name string) (Result, bool) {
	for _, r := range s.Results {
		if r.Route.Name == name {
			return r, true
		}
	}
	return Result{}, false
}

// skipRemaining records every route in routes that has no outcome yet as
// skipped with reason.
func (s *Summary) skipRemaining(routes []Route, reason string) {
	for _, route := range routes {
		if _, ok := s.Result(route.Name); !ok {
			s.add(Result{Route: route, Status: StatusSkipped, Reason: reason})
		}
	}
}

// Print logs the totals and every route that was not captured.
func (s *Summary) Print(outputDir string) {
	log.Infof("Run finished in %s: %d captured, %d failed, %d skipped",
		s.Finished.Sub(s.Started).Round(time.Millisecond),
		s.Count(StatusCaptured), s.Count(StatusFailed), s.Count(StatusSkipped))

	for _, r := range s.Results {
		switch r.Status {
		case StatusFailed:
			log.Errorf("  %s (%s): %s", r.Route.Name, r.Route.Path, r.Reason)
		case StatusSkipped:
			log.Warnf("  %s (%s): skipped, %s", r.Route.Name, r.Route.Path, r.Reason)
		}
	}

	if s.Count(StatusCaptured) > 0 {
		log.Resultf("Screenshots saved in %s", outputDir)
	}
}
