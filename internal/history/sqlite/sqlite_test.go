package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/esbox/internal/history"
	"github.com/loykin/esbox/internal/process"
)

func runEvents() (history.Event, history.Event) {
	started := time.Now().Add(-time.Second).UTC().Truncate(time.Millisecond)
	st := process.Status{Script: "/w/app.js", PID: 12345, Running: true, StartedAt: started, ExitCode: -1}
	start := history.Event{Type: history.EventStart, OccurredAt: started, Status: st}
	st.Running = false
	st.ExitCode = 2
	st.StoppedAt = time.Now().UTC().Truncate(time.Millisecond)
	exit := history.Event{Type: history.EventExit, OccurredAt: st.StoppedAt, Status: st}
	return start, exit
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	start, exit := runEvents()
	if err := sink.Send(ctx, start); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}
	if err := sink.Send(ctx, exit); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != history.EventExit || got[1].Type != history.EventStart {
		t.Fatalf("expected newest first, got %s then %s", got[0].Type, got[1].Type)
	}
	if got[0].Status.ExitCode != 2 || got[0].Status.PID != 12345 || got[0].Status.Script != "/w/app.js" || got[0].Status.Running {
		t.Fatalf("unexpected exit row: %+v", got[0].Status)
	}
	if !got[0].Status.StoppedAt.Equal(exit.Status.StoppedAt) {
		t.Fatalf("stopped_at = %v, want %v", got[0].Status.StoppedAt, exit.Status.StoppedAt)
	}
	if !got[1].Status.StoppedAt.IsZero() || got[1].Status.ExitCode != -1 {
		t.Fatalf("unexpected start row: %+v", got[1].Status)
	}

	got, err = sink.Recent(ctx, 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("limit not applied: %v %d", err, len(got))
	}
}

func TestSQLiteSink_FileDSNPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()
	start, _ := runEvents()

	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	if err := sink.Send(ctx, start); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sink, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = sink.Close() }()
	got, err := sink.Recent(ctx, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected persisted row, got %d (%v)", len(got), err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
