// Package notify forwards inbound-message summaries to external chat
// services. Sinks are send-only and best effort: a sink failure is
// logged and never touches synchronization state.
package notify

import (
	"fmt"
	"log/slog"

	"lmsync/internal/domain"
)

// maxPreviewLen caps the quoted message body in a notification.
const maxPreviewLen = 200

// Sink delivers one formatted notification line.
type Sink interface {
	Name() string
	Send(text string) error
}

// Fanout sends every new inbound message to all configured sinks.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

// Enabled reports whether any sink is configured.
func (f *Fanout) Enabled() bool { return len(f.sinks) > 0 }

// MessageReceived formats and delivers one notification. senderName
// may be empty when the sender is not in the contact book.
func (f *Fanout) MessageReceived(msg domain.Message, senderName string) {
	if senderName == "" {
		senderName = fmt.Sprintf("user %d", msg.FromUserID)
	}
	text := fmt.Sprintf("New message from %s: %s", senderName, preview(msg.Content))

	for _, s := range f.sinks {
		if err := s.Send(text); err != nil {
			f.logger.Error("notification delivery failed", "sink", s.Name(), "err", err)
		}
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= maxPreviewLen {
		return content
	}
	return string(runes[:maxPreviewLen]) + "..."
}
