package domain

import "time"

// Role values returned by the contacts endpoint.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleCurator = "curator"
	RoleAdmin   = "admin"
)

// Contact is one person the current user may message. Contacts are an
// immutable snapshot: the list is refreshed wholesale, never patched.
type Contact struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url"`
}

// LastMessage is the preview carried by a thread.
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	FromMe    bool      `json:"from_me"`
}

// Thread summarizes one conversation with a single partner. The set of
// threads is keyed by PartnerID and replaced in full on every refresh.
// Synthetic marks a client-only placeholder built from a Contact for a
// conversation the server has not produced a thread for yet.
type Thread struct {
	PartnerID     int64       `json:"partner_id"`
	PartnerName   string      `json:"partner_name"`
	PartnerAvatar string      `json:"partner_avatar"`
	LastMessage   LastMessage `json:"last_message"`
	UnreadCount   int         `json:"unread_count"`
	Synthetic     bool        `json:"-"`
}

// Message is one direct message. IDs are server-assigned, unique and
// monotonically increasing by send order. Messages are append-only from
// the client's perspective; the only permitted mutation is IsRead.
type Message struct {
	ID         int64     `json:"id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// InConversation reports whether m belongs to the conversation between
// the viewer and partner. Conversation identity is the unordered
// (from, to) pair.
func (m Message) InConversation(viewerID, partnerID int64) bool {
	return (m.FromUserID == viewerID && m.ToUserID == partnerID) ||
		(m.FromUserID == partnerID && m.ToUserID == viewerID)
}
