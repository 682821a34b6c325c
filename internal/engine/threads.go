package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lmsync/internal/domain"
)

// ThreadStore caches the conversation list. Every refresh replaces the
// whole set; there is no incremental merge. Two independent triggers
// feed the single Refresh entry point: a fixed-interval backstop
// ticker and explicit kicks after anything that could move thread
// ordering or unread counts.
type ThreadStore struct {
	api      domain.MessagingAPI
	interval time.Duration
	logger   *slog.Logger

	kick chan struct{}

	mu        sync.RWMutex
	threads   []domain.Thread
	byPartner map[int64]domain.Thread
}

func NewThreadStore(api domain.MessagingAPI, interval time.Duration, logger *slog.Logger) *ThreadStore {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ThreadStore{
		api:       api,
		interval:  interval,
		logger:    logger,
		kick:      make(chan struct{}, 1),
		byPartner: make(map[int64]domain.Thread),
	}
}

// Refresh replaces the cached thread set. Server order is preserved;
// the client never re-sorts. A transient failure keeps the previous
// set and is logged, not surfaced.
func (s *ThreadStore) Refresh(ctx context.Context) {
	threads, err := s.api.Conversations(ctx)
	if err != nil {
		s.logger.Warn("thread refresh failed", "err", err)
		return
	}

	byPartner := make(map[int64]domain.Thread, len(threads))
	for _, t := range threads {
		byPartner[t.PartnerID] = t
	}

	s.mu.Lock()
	s.threads = threads
	s.byPartner = byPartner
	s.mu.Unlock()
}

// Kick requests an out-of-band refresh from the Run loop. Multiple
// kicks before the loop gets to them coalesce into one refresh.
func (s *ThreadStore) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run refreshes on the backstop interval and on every Kick until ctx
// is cancelled. Both triggers converge on Refresh.
func (s *ThreadStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		case <-s.kick:
			s.Refresh(ctx)
		}
	}
}

// Threads returns a copy of the cached set in server order.
func (s *ThreadStore) Threads() []domain.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

// Get returns the cached thread for a partner.
func (s *ThreadStore) Get(partnerID int64) (domain.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byPartner[partnerID]
	return t, ok
}

// View returns the thread list with a synthetic entry prepended when
// the active conversation's partner has no server-side thread yet
// (a brand-new conversation). The synthetic entry is built from the
// contact book and disappears as soon as a real thread arrives: the
// next full replace simply includes the partner and the view stops
// synthesizing.
func (s *ThreadStore) View(activePartner int64, contacts *ContactBook) []domain.Thread {
	threads := s.Threads()
	if activePartner == 0 {
		return threads
	}
	for _, t := range threads {
		if t.PartnerID == activePartner {
			return threads
		}
	}

	c, ok := contacts.Lookup(activePartner)
	if !ok {
		return threads
	}
	synthetic := domain.Thread{
		PartnerID:     c.UserID,
		PartnerName:   c.DisplayName,
		PartnerAvatar: c.AvatarURL,
		Synthetic:     true,
	}
	return append([]domain.Thread{synthetic}, threads...)
}

// UnreadTotal sums the cached per-thread unread counts. This is the
// REST-derived fallback for the badge when the channel is down.
func (s *ThreadStore) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, t := range s.threads {
		total += t.UnreadCount
	}
	return total
}
