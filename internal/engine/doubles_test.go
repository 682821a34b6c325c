package engine

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"lmsync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeChannel implements domain.PushChannel for tests: emits are
// recorded, inbound events are injected with deliver.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	emits     []domain.ClientEvent
	handlers  map[domain.HandlerID]func(domain.ServerEvent)
	next      int
	// ackCount, when >= 0, answers UnreadCount emits synchronously.
	ackCount int
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{
		connected: connected,
		handlers:  make(map[domain.HandlerID]func(domain.ServerEvent)),
		ackCount:  -1,
	}
}

func (f *fakeChannel) On(fn func(domain.ServerEvent)) domain.HandlerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := domain.HandlerID("fake-" + strconv.Itoa(f.next))
	f.handlers[id] = fn
	return id
}

func (f *fakeChannel) Off(id domain.HandlerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, id)
}

func (f *fakeChannel) Emit(ev domain.ClientEvent) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return domain.ErrDisconnected
	}
	f.emits = append(f.emits, ev)
	ack := f.ackCount
	f.mu.Unlock()

	if uc, ok := ev.(domain.UnreadCount); ok && uc.Ack != nil && ack >= 0 {
		uc.Ack(ack)
	}
	return nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) deliver(ev domain.ServerEvent) {
	f.mu.Lock()
	fns := make([]func(domain.ServerEvent), 0, len(f.handlers))
	for _, fn := range f.handlers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeChannel) emitted() []domain.ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ClientEvent, len(f.emits))
	copy(out, f.emits)
	return out
}

// fakeAPI implements domain.MessagingAPI with canned results and call
// counters.
type fakeAPI struct {
	mu sync.Mutex

	threads    []domain.Thread
	threadsErr error

	history    map[int64][]domain.Message
	historyErr error
	// historyGate, when set, blocks History until the gate closes so
	// tests can interleave an in-flight fetch with a switch.
	historyGate chan struct{}

	contacts    []domain.Contact
	contactsErr error

	sendResult domain.Message
	sendErr    error

	conversationsCalls int
	historyCalls       int
	sendCalls          int
	contactCalls       int
	markAllReadCalls   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{history: make(map[int64][]domain.Message)}
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversationsCalls++
	if f.threadsErr != nil {
		return nil, f.threadsErr
	}
	out := make([]domain.Thread, len(f.threads))
	copy(out, f.threads)
	return out, nil
}

func (f *fakeAPI) History(ctx context.Context, partnerID int64) ([]domain.Message, error) {
	f.mu.Lock()
	f.historyCalls++
	gate := f.historyGate
	err := f.historyErr
	msgs := make([]domain.Message, len(f.history[partnerID]))
	copy(msgs, f.history[partnerID])
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (f *fakeAPI) Send(ctx context.Context, toUserID int64, content string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	msg := f.sendResult
	if msg.ID == 0 {
		msg = domain.Message{ID: int64(1000 + f.sendCalls), ToUserID: toUserID, Content: content}
	}
	return msg, nil
}

func (f *fakeAPI) AvailableContacts(ctx context.Context) ([]domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactCalls++
	if f.contactsErr != nil {
		return nil, f.contactsErr
	}
	out := make([]domain.Contact, len(f.contacts))
	copy(out, f.contacts)
	return out, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, messageID int64) error { return nil }

func (f *fakeAPI) MarkAllRead(ctx context.Context, partnerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllReadCalls++
	return nil
}
