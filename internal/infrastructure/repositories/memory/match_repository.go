package memory

import (
	"context"
	"sync"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"
)

// MatchRepository holds per-skill FIFO queues and per-user match state for a
// single instance. One mutex serializes entire matching rounds, which gives
// the same isolation the distributed variant gets from a server-side script.
type MatchRepository struct {
	states   map[domain.UserID]domain.MatchState
	queues   map[string][]domain.UserID
	queuedIn map[domain.UserID]map[string]struct{}
	presence ports.PresenceRepository
	mu       sync.Mutex
}

func NewMatchRepository(presence ports.PresenceRepository) *MatchRepository {
	return &MatchRepository{
		states:   make(map[domain.UserID]domain.MatchState),
		queues:   make(map[string][]domain.UserID),
		queuedIn: make(map[domain.UserID]map[string]struct{}),
		presence: presence,
	}
}

func (r *MatchRepository) RunMatchRound(ctx context.Context, userID domain.UserID, skills []string) (domain.UserID, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[userID] = domain.MatchSearching

	for _, skill := range skills {
		candidate, ok := r.pop(skill)
		if !ok {
			continue
		}

		if candidate == userID {
			// Never match a user to themselves; requeue at tail once.
			r.enqueue(skill, userID)
			continue
		}

		if !r.isSearching(ctx, candidate) {
			// Stale entry: the candidate moved on or went offline while
			// queued. Dropping it here is the cleanup.
			r.dropFromAllQueues(candidate)
			continue
		}

		// Valid match: claim both states and clear every queue entry.
		r.states[userID] = domain.MatchMatched
		r.states[candidate] = domain.MatchMatched
		r.dropFromAllQueues(userID)
		r.dropFromAllQueues(candidate)
		return candidate, skill, nil
	}

	// No skill produced a match; wait on every queue.
	for _, skill := range skills {
		r.enqueue(skill, userID)
	}
	return "", "", nil
}

func (r *MatchRepository) CancelMatching(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropFromAllQueues(userID)
	r.states[userID] = domain.MatchIdle
	return nil
}

func (r *MatchRepository) GetState(ctx context.Context, userID domain.UserID) (domain.MatchState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[userID]
	if !ok {
		return domain.MatchIdle, nil
	}
	return state, nil
}

func (r *MatchRepository) SetState(ctx context.Context, userID domain.UserID, state domain.MatchState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[userID] = state
	if state != domain.MatchSearching {
		// No queue entry may survive a transition away from SEARCHING.
		r.dropFromAllQueues(userID)
	}
	return nil
}

func (r *MatchRepository) isSearching(ctx context.Context, userID domain.UserID) bool {
	if r.states[userID] != domain.MatchSearching {
		return false
	}
	online, err := r.presence.IsOnline(ctx, userID)
	return err == nil && online
}

// pop removes and returns the head of a skill queue. Callers hold r.mu.
func (r *MatchRepository) pop(skill string) (domain.UserID, bool) {
	q := r.queues[skill]
	if len(q) == 0 {
		return "", false
	}
	head := q[0]
	r.queues[skill] = q[1:]
	if set := r.queuedIn[head]; set != nil {
		delete(set, skill)
	}
	return head, true
}

// enqueue appends userID to a skill queue unless already present.
func (r *MatchRepository) enqueue(skill string, userID domain.UserID) {
	set := r.queuedIn[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.queuedIn[userID] = set
	}
	if _, dup := set[skill]; dup {
		return
	}
	set[skill] = struct{}{}
	r.queues[skill] = append(r.queues[skill], userID)
}

func (r *MatchRepository) dropFromAllQueues(userID domain.UserID) {
	for skill := range r.queuedIn[userID] {
		q := r.queues[skill]
		for i, u := range q {
			if u == userID {
				r.queues[skill] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
	delete(r.queuedIn, userID)
}
