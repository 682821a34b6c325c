package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lmsync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "archive.db"), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func archMsg(id, from, to int64, sec int) domain.Message {
	return domain.Message{
		ID: id, FromUserID: from, ToUserID: to,
		Content:   "m",
		CreatedAt: time.Date(2026, 2, 10, 9, 0, sec, 0, time.UTC),
	}
}

func TestArchive_RecordAndHistory(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	for _, m := range []domain.Message{
		archMsg(102, 1, 42, 20),
		archMsg(101, 42, 1, 10),
		archMsg(201, 1, 7, 5), // other conversation
	} {
		if err := a.Record(ctx, m); err != nil {
			t.Fatalf("Record(%d): %v", m.ID, err)
		}
	}

	got, err := a.History(ctx, 1, 42, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != 101 || got[1].ID != 102 {
		t.Errorf("history = %+v, want [101 102] ascending", got)
	}
}

func TestArchive_RecordSameIDTwiceUpdatesReadFlag(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	m := archMsg(101, 42, 1, 10)
	if err := a.Record(ctx, m); err != nil {
		t.Fatalf("Record: %v", err)
	}
	m.IsRead = true
	if err := a.Record(ctx, m); err != nil {
		t.Fatalf("Record again: %v", err)
	}

	n, err := a.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 (no duplicate rows)", n)
	}
	got, _ := a.History(ctx, 1, 42, 0)
	if len(got) != 1 || !got[0].IsRead {
		t.Errorf("history = %+v, want single read message", got)
	}
}

func TestArchive_HistoryLimit(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := a.Record(ctx, archMsg(int64(100+i), 42, 1, i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := a.History(ctx, 1, 42, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}
