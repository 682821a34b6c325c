package engine

import (
	"log/slog"

	"lmsync/internal/domain"
)

// ReadSync keeps read/unread state aligned with the server. Marking is
// decoupled from message delivery: a user can read messages without
// producing new ones, so receipts are their own event family in both
// directions.
type ReadSync struct {
	ch     domain.PushChannel
	stream *Stream
	unread *Broadcaster
	logger *slog.Logger
}

func NewReadSync(ch domain.PushChannel, stream *Stream, unread *Broadcaster, logger *slog.Logger) *ReadSync {
	return &ReadSync{ch: ch, stream: stream, unread: unread, logger: logger}
}

// ConversationOpened emits a mark-all-read for the partner over the
// push channel. Fire and forget: this is a UX nicety, not data, so
// there is no REST fallback when the channel is down. The server will
// be told the next time the conversation opens connected.
func (r *ReadSync) ConversationOpened(partnerID int64) {
	if err := r.ch.Emit(domain.ReadAll{PartnerID: partnerID}); err != nil {
		r.logger.Debug("mark-all-read not delivered", "partner", partnerID, "err", err)
	}
	r.unread.Notify()
}

// HandleReceipt applies a single read receipt to the active buffer.
func (r *ReadSync) HandleReceipt(ev domain.MessageUpdated) {
	r.stream.ApplyReceipt(ev.ID, ev.IsRead)
}

// HandleBulkReceipt applies a bulk receipt. IDs for conversations that
// are not active have no buffer and are silently ignored; the thread
// refresh triggers restore unread accuracy for those.
func (r *ReadSync) HandleBulkReceipt(ev domain.MessageBulkUpdated) {
	r.stream.ApplyBulkReceipt(ev.IDs, ev.IsRead)
	r.unread.Notify()
}
