package memory

import (
	"context"
	"fmt"
	"sync"

	"skillcall/internal/core/domain"
)

// CallStore is the process-local authoritative call registry. Records are
// copied on the way in and out so callers never share mutable state, and
// Update enforces the same compare-on-version contract as the distributed
// variant.
type CallStore struct {
	calls map[domain.CallID]*domain.Call
	mu    sync.RWMutex
}

func NewCallStore() *CallStore {
	return &CallStore{
		calls: make(map[domain.CallID]*domain.Call),
	}
}

func (s *CallStore) Create(ctx context.Context, call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calls[call.ID]; exists {
		return fmt.Errorf("call already exists: %s", call.ID)
	}

	stored := *call
	s.calls[call.ID] = &stored
	return nil
}

func (s *CallStore) Get(ctx context.Context, id domain.CallID) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, exists := s.calls[id]
	if !exists {
		return nil, domain.ErrCallNotFound
	}

	copied := *call
	return &copied, nil
}

func (s *CallStore) Update(ctx context.Context, call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.calls[call.ID]
	if !exists {
		return domain.ErrCallNotFound
	}
	if stored.Version != call.Version {
		return domain.ErrVersionConflict
	}

	updated := *call
	updated.Version++
	s.calls[call.ID] = &updated
	call.Version = updated.Version
	return nil
}

func (s *CallStore) Remove(ctx context.Context, id domain.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calls[id]; !exists {
		return domain.ErrCallNotFound
	}

	delete(s.calls, id)
	return nil
}

func (s *CallStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Call
	for _, call := range s.calls {
		if call.IsParticipant(userID) {
			copied := *call
			out = append(out, &copied)
		}
	}
	return out, nil
}
