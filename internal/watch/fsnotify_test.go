package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribe(t *testing.T, dir string) *FSWatcher {
	t.Helper()
	fw, err := Subscribe(dir, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fw.Close() })
	select {
	case <-fw.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return fw
}

// waitFor drains events until one matches filename or the timeout passes.
func waitFor(t *testing.T, fw *FSWatcher, filename string, types ...EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-fw.Events():
			if ev.Filename != filename {
				continue
			}
			if len(types) == 0 {
				return ev
			}
			for _, typ := range types {
				if ev.Type == typ {
					return ev
				}
			}
		case <-timeout:
			t.Fatalf("no %v event for %s", types, filename)
			return Event{}
		}
	}
}

func TestSubscribeReportsAddChangeDelete(t *testing.T) {
	dir := t.TempDir()
	fw := subscribe(t, dir)
	file := filepath.Join(dir, "app.js")

	require.NoError(t, os.WriteFile(file, []byte("1"), 0o644))
	ev := waitFor(t, fw, "app.js", EventAdd, EventChange)
	assert.Equal(t, fw.Root(), ev.Root)
	assert.Equal(t, filepath.Join(fw.Root(), "app.js"), ev.Path())

	f, err := os.OpenFile(file, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	waitFor(t, fw, "app.js", EventChange)

	require.NoError(t, os.Remove(file))
	waitFor(t, fw, "app.js", EventDelete)
}

func TestSubscribeFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	fw := subscribe(t, dir)

	sub := filepath.Join(dir, "lib")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, fw, "lib", EventAdd)

	// give the watcher a moment to register the new directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "util.js"), []byte("x"), 0o644))
	waitFor(t, fw, filepath.Join("lib", "util.js"))
}

func TestSubscribeSkipsIgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	nm := filepath.Join(dir, "node_modules", "pkg")
	require.NoError(t, os.MkdirAll(nm, 0o755))
	fw := subscribe(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(nm, "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.js"), []byte("x"), 0o644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-fw.Events():
			assert.NotContains(t, ev.Filename, "node_modules")
			if ev.Filename == "marker.js" {
				return
			}
		case <-timeout:
			t.Fatal("marker event not seen")
		}
	}
}

func TestSubscribeRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.js")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := Subscribe(file, Options{})
	assert.Error(t, err)
	_, err = Subscribe(filepath.Join(dir, "nope"), Options{})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	fw := subscribe(t, t.TempDir())
	require.NoError(t, fw.Close())
	assert.NoError(t, fw.Close())
	_, ok := <-fw.Events()
	assert.False(t, ok, "events channel closed after Close")
}

func TestIgnored(t *testing.T) {
	fw := &FSWatcher{ignore: map[string]struct{}{"node_modules": {}, ".git": {}}}
	assert.False(t, fw.ignored("."))
	assert.False(t, fw.ignored("src/app.js"))
	assert.True(t, fw.ignored("node_modules/x/index.js"))
	assert.True(t, fw.ignored(".git/HEAD"))
	assert.True(t, fw.ignored("../outside.js"))
}

func TestSource(t *testing.T) {
	s := NewSource(2)
	s.Emit(Event{Type: EventChange, Filename: "a.js", Root: "/r"})
	s.MarkReady()
	s.MarkReady()
	select {
	case <-s.Ready():
	default:
		t.Fatal("ready not fired")
	}
	ev := <-s.Events()
	assert.Equal(t, "/r/a.js", filepath.ToSlash(ev.Path()))
	s.Fail(assert.AnError)
	assert.Equal(t, assert.AnError, <-s.Errors())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
