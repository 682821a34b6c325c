package domain

import "context"

// MessagingAPI is the REST surface of the messaging backend. All calls
// are best effort from the engine's point of view: a transient failure
// is logged by the caller and the previous (or empty) result stands.
type MessagingAPI interface {
	// Conversations returns the thread list in server-defined order
	// (most recent activity first; the client does not re-sort).
	Conversations(ctx context.Context) ([]Thread, error)
	// History returns the full conversation with partnerID,
	// newest-first as served; callers reverse to ascending.
	History(ctx context.Context, partnerID int64) ([]Message, error)
	// Send creates a message via POST and returns the stored record.
	Send(ctx context.Context, toUserID int64, content string) (Message, error)
	// AvailableContacts returns everyone the current user may message.
	AvailableContacts(ctx context.Context) ([]Contact, error)
	// MarkRead flips a single message to read.
	MarkRead(ctx context.Context, messageID int64) error
	// MarkAllRead flips every inbound message from partnerID to read.
	MarkAllRead(ctx context.Context, partnerID int64) error
}

// MessageArchive is an optional local transcript sink. The engine only
// ever writes to it; sync decisions never read it back.
type MessageArchive interface {
	Record(ctx context.Context, msg Message) error
	Close() error
}
