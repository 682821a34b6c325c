package engine

import (
	"context"
	"log/slog"
	"sync"

	"lmsync/internal/domain"
)

// ContactBook resolves and caches the people the current user may
// message. The cache is replaced wholesale on every successful load;
// a failed load keeps the previous snapshot and is not fatal.
type ContactBook struct {
	api        domain.MessagingAPI
	viewerRole string
	logger     *slog.Logger

	mu       sync.RWMutex
	contacts []domain.Contact
	byID     map[int64]domain.Contact
}

func NewContactBook(api domain.MessagingAPI, viewerRole string, logger *slog.Logger) *ContactBook {
	return &ContactBook{
		api:        api,
		viewerRole: viewerRole,
		logger:     logger,
		byID:       make(map[int64]domain.Contact),
	}
}

// Load fetches the contact list. On failure it logs, leaves the cached
// snapshot alone and returns an empty list; messaging is best effort
// and a load error never blocks the caller.
func (b *ContactBook) Load(ctx context.Context) []domain.Contact {
	contacts, err := b.api.AvailableContacts(ctx)
	if err != nil {
		b.logger.Warn("contact load failed", "err", err)
		return nil
	}

	byID := make(map[int64]domain.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.UserID] = c
	}

	b.mu.Lock()
	b.contacts = contacts
	b.byID = byID
	b.mu.Unlock()

	return b.Contacts()
}

// Contacts returns a copy of the cached snapshot.
func (b *ContactBook) Contacts() []domain.Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

// Lookup returns the cached contact with the given user ID.
func (b *ContactBook) Lookup(userID int64) (domain.Contact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.byID[userID]
	return c, ok
}

// ContactGroup is one role bucket in a grouped contact listing.
type ContactGroup struct {
	Role     string
	Contacts []domain.Contact
}

// Grouped partitions the cached contacts for display. Students see
// role buckets (teacher, curator, admin, other); everyone else gets a
// single flat, searchable group.
func (b *ContactBook) Grouped() []ContactGroup {
	contacts := b.Contacts()

	if b.viewerRole != domain.RoleStudent {
		return []ContactGroup{{Role: "all", Contacts: contacts}}
	}

	buckets := map[string][]domain.Contact{}
	for _, c := range contacts {
		role := c.Role
		switch role {
		case domain.RoleTeacher, domain.RoleCurator, domain.RoleAdmin:
		default:
			role = "other"
		}
		buckets[role] = append(buckets[role], c)
	}

	var groups []ContactGroup
	for _, role := range []string{domain.RoleTeacher, domain.RoleCurator, domain.RoleAdmin, "other"} {
		if len(buckets[role]) > 0 {
			groups = append(groups, ContactGroup{Role: role, Contacts: buckets[role]})
		}
	}
	return groups
}
