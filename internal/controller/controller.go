// Package controller serialises and debounces script restarts.
//
// It owns the single active child handle: every effective run terminates the
// previous child before spawning the next one, and bursts of file events are
// collapsed into one restart by a debouncer with a max-wait bound.
package controller

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/loykin/esbox/internal/debounce"
	"github.com/loykin/esbox/internal/locator"
	"github.com/loykin/esbox/internal/metrics"
	"github.com/loykin/esbox/internal/process"
	"github.com/loykin/esbox/internal/watch"
)

// Defaults for the debounce policy.
const (
	DefaultQuietInterval = 10 * time.Millisecond
	DefaultMaxWait       = time.Second
)

// Child is the part of a running script the controller relies on.
type Child interface {
	Terminate() error
	Stop(grace time.Duration)
	Done() <-chan struct{}
	Snapshot() process.Status
}

// StartFunc spawns a child for spec.
type StartFunc func(spec process.Spec) (Child, error)

// Options configure a Controller.
type Options struct {
	Spec          process.Spec
	Reporter      *process.Reporter
	QuietInterval time.Duration
	MaxWait       time.Duration
	Extension     string // file events must end with it; locator.DefaultExtension when empty
	Start         StartFunc
	Clock         debounce.Clock

	// Invalidate is called with the absolute path of every qualifying file event
	// before the rerun is requested.
	Invalidate func(path string)
	// OnStart and OnExit observe each run, e.g. for history persistence.
	OnStart func(process.Status)
	OnExit  func(process.Status)
}

// Snapshot describes the controller state.
type Snapshot struct {
	Runs     int            `json:"runs"`
	Debounce string         `json:"debounce"`
	Current  process.Status `json:"current"`
	HasRun   bool           `json:"has_run"`
}

// Controller coordinates repeated runs of one script.
type Controller struct {
	opts      Options
	pattern   *regexp.Regexp
	debouncer *debounce.Debouncer

	mu     sync.Mutex
	active Child
	runs   int

	observers sync.WaitGroup
}

func startProcess(spec process.Spec) (Child, error) {
	h, err := process.Start(spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// New builds a controller. Nothing runs until RequestRun, Wire or RunOnce.
func New(opts Options) *Controller {
	if opts.QuietInterval <= 0 {
		opts.QuietInterval = DefaultQuietInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Extension == "" {
		opts.Extension = locator.DefaultExtension
	}
	if opts.Start == nil {
		opts.Start = startProcess
	}
	if opts.Reporter == nil {
		opts.Reporter = process.NewReporter(opts.Spec.Stdout, opts.Spec.Stderr, opts.Spec.Clear)
	}
	c := &Controller{
		opts:    opts,
		pattern: regexp.MustCompile(regexp.QuoteMeta(opts.Extension) + "$"),
	}
	c.debouncer = debounce.New(opts.QuietInterval, opts.MaxWait, func() { _, _ = c.run() }, debounce.WithClock(opts.Clock))
	return c
}

// RequestRun asks for a (debounced) restart of the script.
func (c *Controller) RequestRun() { c.debouncer.Call() }

// Matches reports whether filename looks like a script.
func (c *Controller) Matches(filename string) bool { return c.pattern.MatchString(filename) }

// OnFileEvent filters ev to script-like files and requests a rerun.
func (c *Controller) OnFileEvent(ev watch.Event) {
	if !c.Matches(ev.Filename) {
		return
	}
	metrics.IncFileEvent(string(ev.Type))
	if c.opts.Invalidate != nil {
		c.opts.Invalidate(ev.Path())
	}
	c.RequestRun()
}

// run is the effective call: clear, banner, terminate previous, spawn next.
func (c *Controller) run() (Child, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := c.opts.Reporter
	rep.Clear()
	rep.Banner(c.opts.Spec.Script)

	if c.active != nil {
		if err := c.active.Terminate(); err != nil {
			slog.Debug("terminate previous run", "error", err)
		}
		metrics.IncTermination()
	}

	child, err := c.opts.Start(c.opts.Spec)
	if err != nil {
		slog.Error("Failed to start script", "script", c.opts.Spec.Script, "error", err)
		rep.Error(err)
		c.active = nil
		return nil, err
	}
	c.active = child
	c.runs++
	st := child.Snapshot()
	slog.Debug("script started", "script", st.Script, "pid", st.PID, "run", c.runs)
	metrics.IncRun()
	if c.opts.OnStart != nil {
		c.opts.OnStart(st)
	}
	c.observers.Add(1)
	go c.observe(child)
	return child, nil
}

func (c *Controller) observe(child Child) {
	defer c.observers.Done()
	<-child.Done()
	st := child.Snapshot()
	c.opts.Reporter.Exit(st.ExitCode)
	if err := process.ExitErr(st.ExitCode); err != nil {
		slog.Info("script failed", "script", st.Script, "pid", st.PID, "error", err)
	} else {
		slog.Debug("script exited", "script", st.Script, "pid", st.PID, "code", st.ExitCode)
	}
	metrics.ObserveExit(st.ExitCode, st.StoppedAt.Sub(st.StartedAt))
	c.mu.Lock()
	if c.active == child {
		metrics.SetRunning(false)
	}
	c.mu.Unlock()
	if c.opts.OnExit != nil {
		c.opts.OnExit(st)
	}
}

// Wire consumes adapter until ctx is done or the event stream closes.
// Ready triggers the initial run; every event goes through OnFileEvent.
func (c *Controller) Wire(ctx context.Context, adapter watch.Adapter) error {
	ready := adapter.Ready()
	errs := adapter.Errors()
	events := adapter.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
			ready = nil
			c.RequestRun()
		case err := <-errs:
			slog.Warn("watcher error", "error", err)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.OnFileEvent(ev)
		}
	}
}

// RunOnce performs one immediate run and waits for it to finish.
// It returns the child's exit code once its status line has been printed.
func (c *Controller) RunOnce(ctx context.Context) (int, error) {
	child, err := c.run()
	if err != nil {
		return 1, err
	}
	select {
	case <-child.Done():
	case <-ctx.Done():
		child.Stop(time.Second)
		c.observers.Wait()
		return child.Snapshot().ExitCode, ctx.Err()
	}
	c.observers.Wait()
	return child.Snapshot().ExitCode, nil
}

// Shutdown cancels pending restarts and stops the active child within grace.
func (c *Controller) Shutdown(grace time.Duration) {
	c.debouncer.Stop()
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.Stop(grace)
	}
	done := make(chan struct{})
	go func() {
		c.observers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace + time.Second):
		slog.Warn("exit observers still pending at shutdown")
	}
}

// Snapshot returns the current controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Runs: c.runs, Debounce: c.debouncer.State().String()}
	if c.active != nil {
		s.Current = c.active.Snapshot()
		s.HasRun = true
	}
	return s
}
