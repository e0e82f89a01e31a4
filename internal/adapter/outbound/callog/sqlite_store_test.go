package callog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/internal/domain/calllog"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "calllog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []calllog.Record{
		{Timestamp: time.Now().UTC(), SessionID: "team", CallerID: "c1", Method: "tools/call", ToolName: "echo", DurationMs: 12, Outcome: calllog.OutcomeOK},
		{Timestamp: time.Now().UTC(), SessionID: "team", CallerID: "c1", Method: "tools/call", ToolName: "slow", DurationMs: 30000, Outcome: calllog.OutcomeTimeout, ErrorCode: -32001},
		{Timestamp: time.Now().UTC(), SessionID: "solo", CallerID: "c2", Method: "tools/list", DurationMs: 3, Outcome: calllog.OutcomeOK},
	}
	if err := store.Append(ctx, records...); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Newest first.
	if got[0].Method != "tools/list" || got[0].SessionID != "solo" {
		t.Errorf("unexpected newest record: %+v", got[0])
	}
	if got[1].Outcome != calllog.OutcomeTimeout || got[1].ErrorCode != -32001 {
		t.Errorf("timeout record not preserved: %+v", got[1])
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := calllog.Record{Timestamp: time.Now().UTC(), SessionID: "s", CallerID: "c", Method: "ping", Outcome: calllog.OutcomeOK}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected limit of 2, got %d", len(got))
	}
}

func TestAppendEmpty(t *testing.T) {
	store := openTestStore(t)
	if err := store.Append(context.Background()); err != nil {
		t.Errorf("empty append should be a no-op, got %v", err)
	}
}
