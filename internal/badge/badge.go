// Package badge maintains the aggregate unread counter shown outside
// the chat view (window title, tray, prompt). It is deliberately
// decoupled from the chat surface: the only input is the payloadless
// change signal, and the count is re-derived on every signal.
package badge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lmsync/internal/engine"
)

// countWait bounds one re-derivation, so a slow REST fallback cannot
// stall the signal goroutine forever.
const countWait = 5 * time.Second

// Counter is the source the badge re-derives from. *engine.Engine
// satisfies it.
type Counter interface {
	UnreadCount(ctx context.Context) int
}

// Badge caches the last derived unread total and keeps it fresh by
// listening to the broadcaster.
type Badge struct {
	counter Counter
	logger  *slog.Logger

	mu    sync.RWMutex
	count int

	// OnChange, when set, runs after every recount that changed the
	// value (used by the CLI to repaint).
	OnChange func(count int)

	subID int
}

func New(counter Counter, logger *slog.Logger) *Badge {
	return &Badge{counter: counter, logger: logger}
}

// Attach subscribes to the broadcaster and performs the initial count.
// Detach must be called on shutdown.
func (b *Badge) Attach(ctx context.Context, unread *engine.Broadcaster) {
	b.subID = unread.Subscribe(func() { b.recount(ctx) })
	b.recount(ctx)
}

// Detach removes the broadcaster subscription.
func (b *Badge) Detach(unread *engine.Broadcaster) {
	unread.Unsubscribe(b.subID)
}

// Count returns the last derived total.
func (b *Badge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

func (b *Badge) recount(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, countWait)
	defer cancel()

	n := b.counter.UnreadCount(ctx)

	b.mu.Lock()
	changed := n != b.count
	b.count = n
	b.mu.Unlock()

	if changed {
		b.logger.Debug("unread badge updated", "count", n)
		if b.OnChange != nil {
			b.OnChange(n)
		}
	}
}
