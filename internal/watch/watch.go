// Package watch delivers file add/change/delete notifications for a directory tree.
package watch

import "path/filepath"

// EventType classifies a change notification.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
	EventDelete EventType = "delete"
)

// Event is a transient change notification. Filename is relative to Root.
type Event struct {
	Type     EventType `json:"type"`
	Filename string    `json:"filename"`
	Root     string    `json:"root"`
}

// Path returns the absolute path of the changed file.
func (e Event) Path() string { return filepath.Join(e.Root, e.Filename) }

// Adapter is the capability the restart controller consumes: a stream of
// events plus a one-shot Ready signal fired once the initial scan is done.
type Adapter interface {
	Events() <-chan Event
	Ready() <-chan struct{}
	Errors() <-chan error
	Close() error
}

// DefaultIgnoreDirs are never descended into.
var DefaultIgnoreDirs = []string{"node_modules", ".git"}
