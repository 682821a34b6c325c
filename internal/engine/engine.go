// Package engine wires the messaging synchronization core: contact
// book, thread store, message stream, read-state sync and the unread
// broadcaster, all sharing one injected push channel and one REST
// client.
package engine

import (
	"context"
	"log/slog"
	"time"

	"lmsync/internal/domain"
	"lmsync/internal/metrics"
)

// ackWait bounds how long UnreadCount waits for the channel ack before
// falling back to REST.
const ackWait = 3 * time.Second

// Engine owns the sync components and routes push events to them.
type Engine struct {
	viewerID int64
	ch       domain.PushChannel
	api      domain.MessagingAPI
	archive  domain.MessageArchive // nil when archiving is off
	logger   *slog.Logger

	Contacts *ContactBook
	Threads  *ThreadStore
	Stream   *Stream
	Read     *ReadSync
	Unread   *Broadcaster

	// OnNewMessage, when set, observes every inbound message after it
	// has been routed (notification sinks hang off this).
	OnNewMessage func(domain.Message)

	handlerID domain.HandlerID
}

// Options configures a new Engine.
type Options struct {
	ViewerID     int64
	ViewerRole   string
	Channel      domain.PushChannel
	API          domain.MessagingAPI
	Archive      domain.MessageArchive
	PollInterval time.Duration
	Logger       *slog.Logger
}

func New(opts Options) *Engine {
	unread := NewBroadcaster(opts.Logger)
	stream := NewStream(opts.API, opts.ViewerID, opts.Logger)

	return &Engine{
		viewerID: opts.ViewerID,
		ch:       opts.Channel,
		api:      opts.API,
		archive:  opts.Archive,
		logger:   opts.Logger,
		Contacts: NewContactBook(opts.API, opts.ViewerRole, opts.Logger),
		Threads:  NewThreadStore(opts.API, opts.PollInterval, opts.Logger),
		Stream:   stream,
		Read:     NewReadSync(opts.Channel, stream, unread, opts.Logger),
		Unread:   unread,
	}
}

// Start registers the push listener, primes the caches and runs the
// thread poll loop until ctx is cancelled. It blocks; run it in its
// own goroutine when the caller has other work.
func (e *Engine) Start(ctx context.Context) {
	e.handlerID = e.ch.On(e.handleEvent)
	defer e.ch.Off(e.handlerID)

	e.Contacts.Load(ctx)
	e.Threads.Refresh(ctx)

	e.Threads.Run(ctx)
}

// handleEvent routes one push event. The switch is exhaustive over the
// closed ServerEvent set; idempotence by message ID makes redelivery
// harmless.
func (e *Engine) handleEvent(ev domain.ServerEvent) {
	switch ev := ev.(type) {
	case domain.MessageNew:
		e.recordMessage(ev.Message)
		if !e.Stream.AppendIncoming(ev.Message) {
			// A message for some other (or no) conversation still
			// moves that thread's preview and unread count.
			e.logger.Debug("message outside active conversation",
				"id", ev.Message.ID, "from", ev.Message.FromUserID)
		}
		e.Threads.Kick()
		e.Unread.Notify()
		if e.OnNewMessage != nil && ev.Message.FromUserID != e.viewerID {
			e.OnNewMessage(ev.Message)
		}

	case domain.MessageUpdated:
		e.Read.HandleReceipt(ev)

	case domain.MessageBulkUpdated:
		e.Read.HandleBulkReceipt(ev)

	case domain.ThreadsUpdate:
		e.Threads.Kick()
		e.Unread.Notify()

	case domain.UnreadUpdate:
		e.Unread.Notify()
	}
}

// OpenConversation makes partnerID the active conversation: loads its
// history, marks it read and nudges the thread list. Returns the
// ascending message buffer (nil when the open was superseded by a
// newer one).
func (e *Engine) OpenConversation(ctx context.Context, partnerID int64) []domain.Message {
	msgs := e.Stream.Open(ctx, partnerID)
	if active, ok := e.Stream.Active(); !ok || active != partnerID {
		return nil
	}

	e.Read.ConversationOpened(partnerID)
	e.Threads.Kick()
	return msgs
}

// Send delivers a message, preferring the push channel. When the
// channel is down the REST POST is the authoritative path; exactly one
// of the two transports is used per call. The thread list and badge
// are nudged either way.
func (e *Engine) Send(ctx context.Context, toUserID int64, content string) error {
	var err error
	if e.ch.Connected() {
		err = e.ch.Emit(domain.SendMessage{ToUserID: toUserID, Content: content})
	} else {
		err = domain.ErrDisconnected
	}

	if err != nil {
		// REST fallback so delivery never silently fails.
		var msg domain.Message
		msg, err = e.api.Send(ctx, toUserID, content)
		if err != nil {
			return err
		}
		e.recordMessage(msg)
		e.Stream.AppendIncoming(msg)
	}

	metrics.Collector.Counter("lmsync_messages_sent_total", "Messages sent", "").Inc()
	e.Threads.Kick()
	e.Unread.Notify()
	return nil
}

// UnreadCount re-derives the aggregate unread total: channel ack when
// connected, REST thread sum otherwise.
func (e *Engine) UnreadCount(ctx context.Context) int {
	if e.ch.Connected() {
		got := make(chan int, 1)
		err := e.ch.Emit(domain.UnreadCount{Ack: func(n int) {
			select {
			case got <- n:
			default:
			}
		}})
		if err == nil {
			select {
			case n := <-got:
				return n
			case <-time.After(ackWait):
				e.logger.Debug("unread count ack timed out, using REST")
			case <-ctx.Done():
				return 0
			}
		}
	}

	e.Threads.Refresh(ctx)
	return e.Threads.UnreadTotal()
}

func (e *Engine) recordMessage(msg domain.Message) {
	if e.archive == nil {
		return
	}
	if err := e.archive.Record(context.Background(), msg); err != nil {
		e.logger.Warn("archive write failed", "id", msg.ID, "err", err)
	}
}
