package memory

import (
	"context"
	"sync"
	"time"

	"skillcall/internal/core/domain"
)

type presenceEntry struct {
	connID    string
	expiresAt time.Time
}

// PresenceRepository is the single-instance presence registry. Leases expire
// lazily against the injected clock, so tests simulate missed heartbeats by
// advancing the clock instead of sleeping.
type PresenceRepository struct {
	entries map[domain.UserID]presenceEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func NewPresenceRepository(ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{
		entries: make(map[domain.UserID]presenceEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (r *PresenceRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *PresenceRepository) MarkOnline(ctx context.Context, userID domain.UserID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[userID] = presenceEntry{connID: connID, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *PresenceRepository) Refresh(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.live(userID)
	if !ok {
		return nil
	}
	entry.expiresAt = r.now().Add(r.ttl)
	r.entries[userID] = entry
	return nil
}

func (r *PresenceRepository) MarkOffline(ctx context.Context, userID domain.UserID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compare-and-delete: a stale disconnect must not clobber the presence
	// of a newer connection under the same user.
	if entry, ok := r.live(userID); ok && entry.connID == connID {
		delete(r.entries, userID)
	}
	return nil
}

func (r *PresenceRepository) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.live(userID)
	return ok, nil
}

func (r *PresenceRepository) Owner(ctx context.Context, userID domain.UserID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.live(userID)
	if !ok {
		return "", nil
	}
	return entry.connID, nil
}

// live returns the entry for userID if its lease has not expired, evicting
// it otherwise. Callers must hold r.mu.
func (r *PresenceRepository) live(userID domain.UserID) (presenceEntry, bool) {
	entry, ok := r.entries[userID]
	if !ok {
		return presenceEntry{}, false
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.entries, userID)
		return presenceEntry{}, false
	}
	return entry, true
}
