// Package esbox reruns a script every time a script file under its working
// directory changes. It is the embedding API behind the esbox command.
package esbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/esbox/internal/config"
	"github.com/loykin/esbox/internal/controller"
	"github.com/loykin/esbox/internal/history"
	"github.com/loykin/esbox/internal/history/factory"
	"github.com/loykin/esbox/internal/locator"
	"github.com/loykin/esbox/internal/logger"
	"github.com/loykin/esbox/internal/metrics"
	"github.com/loykin/esbox/internal/process"
	"github.com/loykin/esbox/internal/server"
	"github.com/loykin/esbox/internal/watch"
)

// Re-export core types for external consumers.

type Config = config.RunConfig

type Status = process.Status

type Snapshot = controller.Snapshot

type Event = watch.Event

type NotFoundError = locator.NotFoundError

type HistorySink = history.Sink

type LogConfig = logger.Config

// TerminatedExitCode is the exit code of a run replaced by a restart.
const TerminatedExitCode = process.TerminatedExitCode

// ShutdownGrace bounds how long the last run gets to exit when esbox stops.
const ShutdownGrace = 2 * time.Second

// NewViper returns a viper instance preloaded with esbox defaults and ESBOX_* env binding.
func NewViper() *viper.Viper { return config.NewViper() }

// BindFlags lets flags the user actually passed override file and env values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error { return config.BindFlags(v, fs) }

// LoadConfig resolves arg to a script and builds the run configuration.
func LoadConfig(v *viper.Viper, arg string) (Config, error) { return config.Load(v, arg) }

// NewLogger builds the diagnostics logger described by c.
func NewLogger(c LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	return logger.New(c, console)
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewHistorySink opens a sink for dsn (sqlite path, postgres://, clickhouse://, opensearch://).
func NewHistorySink(ctx context.Context, dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(ctx, dsn)
}

// IO carries the streams a session writes to. Zero values mean the process's own.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (s IO) withDefaults() IO {
	if s.In == nil {
		s.In = os.Stdin
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.Err == nil {
		s.Err = os.Stderr
	}
	return s
}

// Session is one wired esbox instance: the restart controller plus the
// optional history recorder, resource sampler and control server.
type Session struct {
	cfg      Config
	ctl      *controller.Controller
	recorder *history.Recorder
	sampler  *metrics.Sampler
	server   *server.Server
	closers  []io.Closer
}

// NewSession wires a session for cfg. Nothing runs until Run.
func NewSession(ctx context.Context, cfg Config, streams IO) (*Session, error) {
	streams = streams.withDefaults()
	s := &Session{cfg: cfg}

	spec := cfg.Spec()
	spec.Stdin, spec.Stdout, spec.Stderr = streams.In, streams.Out, streams.Err
	name := strings.TrimSuffix(filepath.Base(cfg.ScriptPath), filepath.Ext(cfg.ScriptPath))
	outW, errW, err := cfg.Log.ProcessWriters(name)
	if err != nil {
		return nil, err
	}
	if outW != nil {
		spec.Stdout = io.MultiWriter(spec.Stdout, outW)
		s.closers = append(s.closers, outW)
	}
	if errW != nil {
		spec.Stderr = io.MultiWriter(spec.Stderr, errW)
		s.closers = append(s.closers, errW)
	}

	opts := controller.Options{
		Spec:          spec,
		Reporter:      process.NewReporter(streams.Out, streams.Err, cfg.Clear),
		QuietInterval: cfg.QuietInterval,
		MaxWait:       cfg.MaxWait,
		Extension:     cfg.Extension,
	}
	if cfg.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(ctx, cfg.HistoryDSN)
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("history: %w", err)
		}
		s.recorder = history.NewRecorder(sink)
		opts.OnStart = s.recorder.OnStart
		opts.OnExit = s.recorder.OnExit
	}
	s.ctl = controller.New(opts)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("register metrics", "error", err)
	}
	if cfg.ServeAddr != "" {
		s.sampler = metrics.NewSampler(metrics.SamplerConfig{}, s.activePID)
		if err := s.sampler.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("register sampler metrics", "error", err)
		}
		ropts := []server.Option{server.WithSampler(s.sampler)}
		if s.recorder != nil {
			if r, ok := s.recorder.Sink().(history.Reader); ok {
				ropts = append(ropts, server.WithHistory(r))
			}
		}
		srv, err := server.NewServer(cfg.ServeAddr, server.NewRouter(s.ctl, "", ropts...))
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("serve %s: %w", cfg.ServeAddr, err)
		}
		s.server = srv
		slog.Info("control server listening", "addr", srv.Addr())
	}
	return s, nil
}

func (s *Session) activePID() int {
	snap := s.ctl.Snapshot()
	if !snap.Current.Running {
		return 0
	}
	return snap.Current.PID
}

// ServerAddr returns the control server address, or "" when disabled.
func (s *Session) ServerAddr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Snapshot reports the controller state.
func (s *Session) Snapshot() Snapshot { return s.ctl.Snapshot() }

// RequestRun asks for a debounced rerun.
func (s *Session) RequestRun() { s.ctl.RequestRun() }

// Run executes the session. Without watching it performs one run and returns
// the script's exit code. In watch mode it reruns on every script change until
// ctx is done, then stops the last run and returns 0.
func (s *Session) Run(ctx context.Context) (int, error) {
	defer s.closeAll()
	if s.sampler != nil {
		s.sampler.Start(ctx)
	}
	if !s.cfg.Watch {
		code, err := s.ctl.RunOnce(ctx)
		s.ctl.Shutdown(ShutdownGrace)
		return code, err
	}

	w, err := watch.Subscribe(s.cfg.WorkDir, watch.Options{IgnoreDirs: s.cfg.IgnoreDirs})
	if err != nil {
		return 1, fmt.Errorf("watch %s: %w", s.cfg.WorkDir, err)
	}
	slog.Debug("watching", "root", w.Root(), "ext", s.cfg.Extension)
	err = s.ctl.Wire(ctx, w)
	_ = w.Close()
	s.ctl.Shutdown(ShutdownGrace)
	if err != nil && ctx.Err() == nil {
		return 1, err
	}
	return 0, nil
}

func (s *Session) closeAll() {
	if s.sampler != nil {
		s.sampler.Stop()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.server.Shutdown(ctx)
		cancel()
		s.server = nil
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			slog.Warn("close history", "error", err)
		}
		s.recorder = nil
	}
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
}

// Run wires and runs a session for cfg.
func Run(ctx context.Context, cfg Config, streams IO) (int, error) {
	s, err := NewSession(ctx, cfg, streams)
	if err != nil {
		return 1, err
	}
	return s.Run(ctx)
}
