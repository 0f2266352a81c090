package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit results used as the "result" label.
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultTerminated = "terminated"
)

// terminatedExitCode mirrors process.TerminatedExitCode without importing it.
const terminatedExitCode = 143

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      "runs_total",
			Help:      "Number of script runs started.",
		},
	)
	terminations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      "terminations_total",
			Help:      "Number of runs terminated to make room for a restart.",
		},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      "exits_total",
			Help:      "Number of finished runs by result.",
		}, []string{"result"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "esbox",
			Subsystem: "script",
			Name:      "running",
			Help:      "1 while a script run is alive.",
		},
	)
	fileEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "esbox",
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Number of script file events that requested a run.",
		}, []string{"type"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runs, terminations, exits, runDuration, running, fileEvents}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the given gatherer; used when metrics live in a private registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Result classifies an exit code for labelling.
func Result(code int) string {
	switch code {
	case 0:
		return ResultSuccess
	case terminatedExitCode:
		return ResultTerminated
	default:
		return ResultFailure
	}
}

// Helpers below no-op until Register has been called.

func IncRun() {
	if regOK.Load() {
		runs.Inc()
		running.Set(1)
	}
}

func IncTermination() {
	if regOK.Load() {
		terminations.Inc()
	}
}

func ObserveExit(code int, d time.Duration) {
	if regOK.Load() {
		res := Result(code)
		exits.WithLabelValues(res).Inc()
		runDuration.WithLabelValues(res).Observe(d.Seconds())
	}
}

// SetRunning records whether the active run is alive.
func SetRunning(alive bool) {
	if regOK.Load() {
		v := 0.0
		if alive {
			v = 1
		}
		running.Set(v)
	}
}

func IncFileEvent(typ string) {
	if regOK.Load() {
		fileEvents.WithLabelValues(typ).Inc()
	}
}
