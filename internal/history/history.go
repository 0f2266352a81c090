package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/esbox/internal/process"
)

// EventType defines the kind of run event.
type EventType string

const (
	EventStart EventType = "start"
	EventExit  EventType = "exit"
)

// Event represents one run event exported to external systems.
type Event struct {
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Status     process.Status `json:"status"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Reader is implemented by sinks that can list what they stored, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

const (
	defaultQueue   = 64
	defaultTimeout = 5 * time.Second
)

// Recorder forwards run events to a sink from a background goroutine so a
// slow database never delays a restart. Events that do not fit the queue are
// dropped with a warning.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	queue   chan Event
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRecorder(sink Sink) *Recorder {
	r := &Recorder{sink: sink, timeout: defaultTimeout, queue: make(chan Event, defaultQueue)}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Send(ctx, e); err != nil {
			slog.Warn("history send failed", "event", e.Type, "script", e.Status.Script, "error", err)
		}
		cancel()
	}
}

func (r *Recorder) enqueue(t EventType, st process.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- Event{Type: t, OccurredAt: time.Now().UTC(), Status: st}:
	default:
		slog.Warn("history queue full, dropping event", "event", t, "pid", st.PID)
	}
}

// OnStart and OnExit match the controller hooks.
func (r *Recorder) OnStart(st process.Status) { r.enqueue(EventStart, st) }
func (r *Recorder) OnExit(st process.Status)  { r.enqueue(EventExit, st) }

// Sink returns the underlying sink.
func (r *Recorder) Sink() Sink { return r.sink }

// Close drains queued events and closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
	return r.sink.Close()
}
