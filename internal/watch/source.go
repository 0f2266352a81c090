package watch

import "sync"

// Source is an in-memory Adapter. Embedders and tests push events into it
// instead of relying on real filesystem notifications.
type Source struct {
	events    chan Event
	errs      chan error
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

func NewSource(buffer int) *Source {
	return &Source{
		events: make(chan Event, buffer),
		errs:   make(chan error, 1),
		ready:  make(chan struct{}),
	}
}

func (s *Source) Events() <-chan Event   { return s.events }
func (s *Source) Ready() <-chan struct{} { return s.ready }
func (s *Source) Errors() <-chan error   { return s.errs }

// Emit delivers ev, blocking while the buffer is full.
func (s *Source) Emit(ev Event) { s.events <- ev }

// MarkReady fires the Ready signal; later calls are no-ops.
func (s *Source) MarkReady() { s.readyOnce.Do(func() { close(s.ready) }) }

// Fail publishes a non-fatal watcher error.
func (s *Source) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}
