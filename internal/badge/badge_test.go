package badge

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"lmsync/internal/engine"
)

type fakeCounter struct {
	mu    sync.Mutex
	n     int
	calls int
}

func (f *fakeCounter) UnreadCount(ctx context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.n
}

func (f *fakeCounter) set(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n = n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBadge_InitialCountOnAttach(t *testing.T) {
	counter := &fakeCounter{n: 3}
	unread := engine.NewBroadcaster(testLogger())
	b := New(counter, testLogger())

	b.Attach(context.Background(), unread)
	defer b.Detach(unread)

	if got := b.Count(); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

func TestBadge_SignalTriggersExactlyOneRecount(t *testing.T) {
	counter := &fakeCounter{n: 3}
	unread := engine.NewBroadcaster(testLogger())
	b := New(counter, testLogger())
	b.Attach(context.Background(), unread)
	defer b.Detach(unread)

	counter.set(5)
	counter.mu.Lock()
	counter.calls = 0
	counter.mu.Unlock()

	unread.Notify()

	counter.mu.Lock()
	calls := counter.calls
	counter.mu.Unlock()
	if calls != 1 {
		t.Errorf("recounts = %d, want exactly 1", calls)
	}
	if got := b.Count(); got != 5 {
		t.Errorf("Count = %d, want 5", got)
	}
}

func TestBadge_OnChangeFiresOnlyWhenValueMoves(t *testing.T) {
	counter := &fakeCounter{n: 2}
	unread := engine.NewBroadcaster(testLogger())
	b := New(counter, testLogger())

	var changes []int
	b.OnChange = func(n int) { changes = append(changes, n) }

	b.Attach(context.Background(), unread)
	defer b.Detach(unread)

	unread.Notify() // same value, no change callback
	counter.set(4)
	unread.Notify()

	if len(changes) != 2 || changes[0] != 2 || changes[1] != 4 {
		t.Errorf("changes = %v, want [2 4]", changes)
	}
}

func TestBadge_DetachStopsRecounts(t *testing.T) {
	counter := &fakeCounter{n: 1}
	unread := engine.NewBroadcaster(testLogger())
	b := New(counter, testLogger())
	b.Attach(context.Background(), unread)
	b.Detach(unread)

	counter.mu.Lock()
	counter.calls = 0
	counter.mu.Unlock()

	unread.Notify()

	counter.mu.Lock()
	defer counter.mu.Unlock()
	if counter.calls != 0 {
		t.Errorf("recounts after detach = %d, want 0", counter.calls)
	}
}
