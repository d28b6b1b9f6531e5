package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/root4loot/goutils/log"
)

var (
	// ErrNotReady is returned when the server does not answer 200 in time.
	ErrNotReady = errors.New("server did not become ready")

	// ErrExited is returned when the server process exits while being awaited.
	ErrExited = errors.New("server process exited")
)

// Options controls how the target server is launched, awaited and stopped.
type Options struct {
	Command      []string      // program and arguments, e.g. npm start
	Dir          string        // working directory of the server
	Grace        time.Duration // fixed bootstrap delay before the first probe
	ReadyTimeout time.Duration // how long to keep probing after the grace delay
	Interval     time.Duration // pause between probes
	ProbeTimeout time.Duration // per-request timeout of a probe
	StopTimeout  time.Duration // how long to wait for exit after signalling
	Output       io.Writer     // receives server stdout/stderr, discarded when nil
}

// DefaultOptions returns the timings used for a dev server started with npm.
func DefaultOptions() Options {
	return Options{
		Command:      []string{"npm", "start"},
		Dir:          "web",
		Grace:        10 * time.Second,
		ReadyTimeout: 30 * time.Second,
		Interval:     time.Second,
		ProbeTimeout: 5 * time.Second,
		StopTimeout:  10 * time.Second,
	}
}

// Manager owns the lifecycle of one server process and every child it spawns.
type Manager struct {
	opts   Options
	client *http.Client

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	stopped bool
}

// NewManager returns a Manager that has not started anything yet.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts,
		client: &http.Client{Timeout: opts.ProbeTimeout},
	}
}

// Start spawns the server in its own process group and returns without
// waiting for it to accept requests.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return fmt.Errorf("server already started")
	}
	if len(m.opts.Command) == 0 {
		return fmt.Errorf("no server command configured")
	}

	cmd := exec.Command(m.opts.Command[0], m.opts.Command[1:]...)
	cmd.Dir = m.opts.Dir
	if m.opts.Output != nil {
		cmd.Stdout = m.opts.Output
		cmd.Stderr = m.opts.Output
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %v: %w", m.opts.Command, err)
	}
	log.Debugf("Server started with pid %d in %q", cmd.Process.Pid, m.opts.Dir)

	m.cmd = cmd
	m.done = make(chan struct{})
	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.waitErr = err
		m.mu.Unlock()
		close(m.done)
	}()

	return nil
}

// PID returns the pid of the started server, or 0.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// AwaitReady waits the grace delay, then probes baseURL every interval until
// it answers 200 or the ready timeout elapses.
func (m *Manager) AwaitReady(ctx context.Context, baseURL string) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return fmt.Errorf("server not started")
	}

	log.Debugf("Waiting %s for the server to boot", m.opts.Grace)
	if err := wait(ctx, done, m.opts.Grace); err != nil {
		return err
	}

	deadline := time.Now().Add(m.opts.ReadyTimeout)
	for attempt := 1; ; attempt++ {
		err := Probe(ctx, m.client, baseURL)
		if err == nil {
			log.Debugf("Server answered after %d probe(s)", attempt)
			return nil
		}
		log.Debugf("Probe %d of %s failed: %v", attempt, baseURL, err)

		if !time.Now().Add(m.opts.Interval).Before(deadline) {
			return fmt.Errorf("%w: %s after %s: %v", ErrNotReady, baseURL, m.opts.ReadyTimeout, err)
		}
		if err := wait(ctx, done, m.opts.Interval); err != nil {
			return err
		}
	}
}

// wait sleeps for d, returning early when ctx ends or the process exits.
func wait(ctx context.Context, done <-chan struct{}, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-done:
		return ErrExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the whole process group and waits up to the stop timeout for
// the server to exit. The group is signalled even when the server itself has
// already exited, and anything still left in it afterwards is killed.
// Calling Stop more than once, or before Start, is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd, done := m.cmd, m.done
	if cmd == nil || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	if err := stopServerTree(cmd); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}

	t := time.NewTimer(m.opts.StopTimeout)
	defer t.Stop()

	select {
	case <-done:
	case <-t.C:
		killServerTree(cmd)
		return fmt.Errorf("server did not exit within %s, killed", m.opts.StopTimeout)
	}

	if !awaitTreeExit(cmd, t.C) {
		log.Debugf("Processes left in the group of pid %d, killing them", cmd.Process.Pid)
		killServerTree(cmd)
	}
	return nil
}

// awaitTreeExit polls until no process is left in the server's group or
// deadline fires.
func awaitTreeExit(cmd *exec.Cmd, deadline <-chan time.Time) bool {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for serverTreeAlive(cmd) {
		select {
		case <-tick.C:
		case <-deadline:
			return false
		}
	}
	return true
}

// Probe issues one GET against url and succeeds only on HTTP 200.
func Probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Attached stands in for a Manager when the server is started by someone
// else: it only checks that the server answers.
type Attached struct {
	client *http.Client
}

// NewAttached returns an Attached whose probe uses the given timeout.
func NewAttached(probeTimeout time.Duration) *Attached {
	return &Attached{client: &http.Client{Timeout: probeTimeout}}
}

func (a *Attached) Start() error { return nil }

// AwaitReady probes baseURL once.
func (a *Attached) AwaitReady(ctx context.Context, baseURL string) error {
	if err := Probe(ctx, a.client, baseURL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReady, baseURL, err)
	}
	return nil
}

func (a *Attached) Stop() error { return nil }
