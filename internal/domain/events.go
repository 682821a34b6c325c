package domain

// Wire event names, one constant per frame the server or client may
// produce. The typed unions below enumerate the same sets; handlers
// switch on the variant type, not on these strings.
const (
	EvMessageNew         = "message:new"
	EvMessageUpdated     = "message:updated"
	EvMessageBulkUpdated = "message:bulk-updated"
	EvThreadsUpdate      = "threads:update"
	EvUnreadUpdate       = "unread:update"

	EvMessageSend    = "message:send"
	EvMessageReadAll = "message:read-all"
	EvUnreadCount    = "unread:count"
)

// ServerEvent is the closed set of push events the server delivers.
// Delivery is at-least-once and in server emission order; consumers
// must be idempotent by message ID.
type ServerEvent interface {
	serverEvent()
}

// MessageNew announces a freshly created message.
type MessageNew struct {
	Message Message
}

// MessageUpdated is a single read receipt: the message with ID now has
// the given IsRead value.
type MessageUpdated struct {
	ID     int64
	IsRead bool
}

// MessageBulkUpdated is a bulk read receipt. IDs not known to the
// receiver are ignored, no retroactive fetch.
type MessageBulkUpdated struct {
	IDs    []int64
	IsRead bool
}

// ThreadsUpdate carries no payload; it tells the client to re-fetch the
// thread list.
type ThreadsUpdate struct{}

// UnreadUpdate carries no payload; it tells the client unread totals
// may have moved.
type UnreadUpdate struct{}

func (MessageNew) serverEvent()         {}
func (MessageUpdated) serverEvent()     {}
func (MessageBulkUpdated) serverEvent() {}
func (ThreadsUpdate) serverEvent()      {}
func (UnreadUpdate) serverEvent()       {}

// ClientEvent is the closed set of frames the client emits.
type ClientEvent interface {
	clientEvent()
}

// SendMessage delivers a message over the channel, best effort. The
// REST POST is the authoritative fallback when disconnected.
type SendMessage struct {
	ToUserID int64
	Content  string
}

// ReadAll asks the server to mark every inbound message from the
// partner as read. Fire and forget.
type ReadAll struct {
	PartnerID int64
}

// UnreadCount requests the aggregate unread total. Ack is invoked with
// the server's count when the reply frame arrives.
type UnreadCount struct {
	Ack func(count int)
}

func (SendMessage) clientEvent() {}
func (ReadAll) clientEvent()     {}
func (UnreadCount) clientEvent() {}
