package engine

import (
	"log/slog"
	"sync"
)

// Broadcaster is the cross-surface "unread counters changed" signal.
// It deliberately carries no payload: the badge and the chat view live
// in unrelated parts of the application with no shared store, so each
// subscriber re-derives its own count instead of trusting an emitter's
// shape. This is the only coupling between them.
type Broadcaster struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[int]func()
	next int
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		subs:   make(map[int]func()),
	}
}

// Subscribe registers fn to run on every Notify. The returned ID is
// used to Unsubscribe on unmount.
func (b *Broadcaster) Subscribe(fn func()) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[b.next] = fn
	return b.next
}

// Unsubscribe removes a subscriber.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Notify tells every subscriber a recount is needed. Subscribers run
// synchronously with panic recovery; one broken surface cannot take
// down the rest.
func (b *Broadcaster) Notify() {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("unread subscriber panic", "panic", r)
				}
			}()
			fn()
		}()
	}
}
