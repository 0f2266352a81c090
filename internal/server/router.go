package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/esbox/internal/controller"
	"github.com/loykin/esbox/internal/history"
	"github.com/loykin/esbox/internal/metrics"
)

// Controller is the part of the restart controller the HTTP API drives.
type Controller interface {
	Snapshot() controller.Snapshot
	RequestRun()
}

// Router provides embeddable HTTP handlers for observing and poking esbox.
// Endpoints:
//
//	GET  {basePath}/status    controller snapshot plus a resource sample of the live run
//	POST {basePath}/rerun     request a (debounced) rerun, as if the script was saved
//	GET  {basePath}/history   recent run events, when the history sink can be read
//	GET  {basePath}/metrics   Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
	history  history.Reader
	sampler  *metrics.Sampler
	metrics  http.Handler
}

// Option customises a Router.
type Option func(*Router)

// WithHistory exposes recent events from r on /history.
func WithHistory(r history.Reader) Option { return func(rt *Router) { rt.history = r } }

// WithSampler adds the sampler's recent samples to /status.
func WithSampler(s *metrics.Sampler) Option { return func(rt *Router) { rt.sampler = s } }

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option { return func(rt *Router) { rt.metrics = h } }

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(ctl Controller, basePath string, opts ...Option) *Router {
	r := &Router{ctl: ctl, basePath: sanitizeBase(basePath), metrics: metrics.Handler()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/rerun", r.handleRerun)
	group.GET("/history", r.handleHistory)
	group.GET("/metrics", gin.WrapH(r.metrics))
	return g
}

// Server is a running control server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Addr returns the bound address, useful with ":0".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// NewServer binds addr and serves the router in the background. Binding
// happens before returning so a busy port is reported to the caller.
// It switches gin to release mode: the terminal belongs to the script, so no
// route dump may be printed on it.
func NewServer(addr string, r *Router) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	return &Server{srv: srv, ln: ln}, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	controller.Snapshot
	Sample  *metrics.ProcessSample  `json:"sample,omitempty"`
	Samples []metrics.ProcessSample `json:"samples,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.ctl.Snapshot()
	resp := statusResp{Snapshot: snap}
	if snap.Current.Running && snap.Current.PID > 0 {
		if s, err := metrics.SampleProcess(snap.Current.PID); err == nil {
			resp.Sample = s
		} else {
			slog.Debug("sample script", "pid", snap.Current.PID, "error", err)
		}
	}
	if r.sampler != nil {
		resp.Samples = r.sampler.History(parseLimit(c.Query("samples"), 10, 100))
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRerun(c *gin.Context) {
	r.ctl.RequestRun()
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.history == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "history is not enabled or not readable"})
		return
	}
	events, err := r.history.Recent(c.Request.Context(), parseLimit(c.Query("limit"), 20, 500))
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
