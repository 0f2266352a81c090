package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Options tune Subscribe.
type Options struct {
	IgnoreDirs []string // directory base names to skip; DefaultIgnoreDirs when nil
	Buffer     int      // event channel capacity (default 64)
}

// FSWatcher watches a directory tree with fsnotify. New subdirectories are
// picked up as they are created.
type FSWatcher struct {
	root   string
	w      *fsnotify.Watcher
	ignore map[string]struct{}

	events chan Event
	errs   chan error
	ready  chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Subscribe starts watching root recursively. Ready is closed after every
// existing directory has been registered.
func Subscribe(root string, opts Options) (*FSWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	ignoreDirs := opts.IgnoreDirs
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = 64
	}
	fw := &FSWatcher{
		root:   abs,
		w:      w,
		ignore: make(map[string]struct{}, len(ignoreDirs)),
		events: make(chan Event, buf),
		errs:   make(chan error, 8),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, d := range ignoreDirs {
		fw.ignore[d] = struct{}{}
	}
	fw.wg.Add(1)
	go fw.run()
	return fw, nil
}

func (fw *FSWatcher) Events() <-chan Event   { return fw.events }
func (fw *FSWatcher) Ready() <-chan struct{} { return fw.ready }
func (fw *FSWatcher) Errors() <-chan error   { return fw.errs }
func (fw *FSWatcher) Root() string           { return fw.root }

// Close stops the watcher and closes the event channel.
func (fw *FSWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.done)
		err = fw.w.Close()
		fw.wg.Wait()
		close(fw.events)
	})
	return err
}

func (fw *FSWatcher) run() {
	defer fw.wg.Done()
	if err := fw.addTree(fw.root); err != nil {
		fw.report(err)
	}
	close(fw.ready)
	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.handle(ev)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.report(err)
		}
	}
}

func (fw *FSWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(fw.root, ev.Name)
	if err != nil || fw.ignored(rel) {
		return
	}
	var typ EventType
	switch {
	case ev.Has(fsnotify.Create):
		typ = EventAdd
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := fw.addTree(ev.Name); err != nil {
				fw.report(err)
			}
		}
	case ev.Has(fsnotify.Write):
		typ = EventChange
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		typ = EventDelete
	default:
		return // chmod only
	}
	slog.Debug("file event", "type", typ, "file", rel)
	select {
	case fw.events <- Event{Type: typ, Filename: rel, Root: fw.root}:
	case <-fw.done:
	}
}

// addTree registers dir and every non-ignored directory below it.
func (fw *FSWatcher) addTree(dir string) error {
	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root {
			if _, skip := fw.ignore[d.Name()]; skip {
				return filepath.SkipDir
			}
		}
		if err := fw.w.Add(path); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", path, err))
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}

// ignored reports whether any component of the root-relative path is ignored.
func (fw *FSWatcher) ignored(rel string) bool {
	if rel == "." {
		return false
	}
	if strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if _, ok := fw.ignore[part]; ok {
			return true
		}
	}
	return false
}

func (fw *FSWatcher) report(err error) {
	select {
	case fw.errs <- err:
	default:
		slog.Warn("watch error dropped", "error", err)
	}
}
