package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"lmsync/internal/domain"
)

// streamState tracks the message stream handler's lifecycle:
// Idle -> Loading -> Ready(partner), with Loading re-entered on every
// conversation switch.
type streamState int

const (
	stateIdle streamState = iota
	stateLoading
	stateReady
)

// Stream materializes the message history of the active conversation
// and keeps it consistent under interleaved REST responses and push
// events. Buffers for previously opened conversations are retained for
// the session (stale but cheap); only the active one is mutated.
type Stream struct {
	api      domain.MessagingAPI
	viewerID int64
	logger   *slog.Logger

	mu      sync.Mutex
	state   streamState
	partner int64
	gen     uint64
	buffers map[int64][]domain.Message
}

func NewStream(api domain.MessagingAPI, viewerID int64, logger *slog.Logger) *Stream {
	return &Stream{
		api:      api,
		viewerID: viewerID,
		logger:   logger,
		buffers:  make(map[int64][]domain.Message),
	}
}

// Open makes partnerID the active conversation and loads its history.
// The server returns newest-first; the buffer is kept ascending by
// CreatedAt. Opening another conversation mid-flight wins: a history
// response that resolves after a switch is discarded by the generation
// check, never applied to the wrong buffer.
//
// A fetch failure is logged and yields whatever buffer was already
// retained (usually empty); the conversation still opens.
func (s *Stream) Open(ctx context.Context, partnerID int64) []domain.Message {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.partner = partnerID
	s.state = stateLoading
	s.mu.Unlock()

	history, err := s.api.History(ctx, partnerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		// The user switched conversations while this fetch was in
		// flight. Stale response, not an error.
		s.logger.Debug("discarding stale history response", "partner", partnerID)
		return nil
	}

	s.state = stateReady
	if err != nil {
		s.logger.Warn("history load failed", "partner", partnerID, "err", err)
		return s.copyBufferLocked(partnerID)
	}

	buf := make([]domain.Message, len(history))
	for i, m := range history {
		buf[len(history)-1-i] = m
	}
	sort.SliceStable(buf, func(i, j int) bool { return buf[i].CreatedAt.Before(buf[j].CreatedAt) })
	s.buffers[partnerID] = buf

	return s.copyBufferLocked(partnerID)
}

// AppendIncoming folds a pushed message into the active buffer. It
// reports false when the message was dropped: handler not in Ready, or
// the message belongs to another conversation. Dropped messages still
// matter to the thread list; the caller triggers that refresh.
//
// Duplicate IDs never create a second entry: a message already present
// is merged instead (see mergeMessage).
func (s *Stream) AppendIncoming(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady {
		return false
	}
	if !msg.InConversation(s.viewerID, s.partner) {
		return false
	}

	buf := s.buffers[s.partner]
	for i := range buf {
		if buf[i].ID == msg.ID {
			buf[i] = mergeMessage(buf[i], msg)
			return true
		}
	}

	buf = append(buf, msg)
	sort.SliceStable(buf, func(i, j int) bool { return buf[i].CreatedAt.Before(buf[j].CreatedAt) })
	s.buffers[s.partner] = buf
	return true
}

// ApplyReceipt flips IsRead for one message in the active buffer.
// Receipts for unknown IDs or inactive conversations are ignored.
func (s *Stream) ApplyReceipt(id int64, isRead bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady {
		return false
	}
	buf := s.buffers[s.partner]
	for i := range buf {
		if buf[i].ID == id {
			buf[i].IsRead = isRead
			return true
		}
	}
	return false
}

// ApplyBulkReceipt flips IsRead for every listed ID present in the
// active buffer and returns how many were touched. IDs that are not
// present are ignored; there is no retroactive fetch.
func (s *Stream) ApplyBulkReceipt(ids []int64, isRead bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady {
		return 0
	}

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	applied := 0
	buf := s.buffers[s.partner]
	for i := range buf {
		if _, ok := wanted[buf[i].ID]; ok {
			buf[i].IsRead = isRead
			applied++
		}
	}
	return applied
}

// Messages returns a copy of the active buffer in CreatedAt order.
func (s *Stream) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateReady {
		return nil
	}
	return s.copyBufferLocked(s.partner)
}

// Active returns the active partner ID, if any conversation is open.
func (s *Stream) Active() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner, s.state == stateReady
}

func (s *Stream) copyBufferLocked(partnerID int64) []domain.Message {
	buf := s.buffers[partnerID]
	out := make([]domain.Message, len(buf))
	copy(out, buf)
	return out
}

// mergeMessage reconciles two sightings of the same message ID, e.g. a
// REST history row and the push event for the same send resolving in
// either order. Identity fields come from the first sighting, since the
// server never rewrites them. IsRead takes the most recently received
// value (last write wins).
func mergeMessage(existing, incoming domain.Message) domain.Message {
	merged := existing
	merged.IsRead = incoming.IsRead
	return merged
}
