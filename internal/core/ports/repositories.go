package ports

import (
	"context"

	"skillcall/internal/core/domain"
)

// PresenceRepository tracks which users currently hold an open connection.
// Records carry a TTL; absence of refresh implies the user went offline.
type PresenceRepository interface {
	// MarkOnline binds userID to connID with the presence TTL.
	MarkOnline(ctx context.Context, userID domain.UserID, connID string) error
	// Refresh extends the TTL without changing the bound connection.
	Refresh(ctx context.Context, userID domain.UserID) error
	// MarkOffline deletes the record only if it still maps to connID, so a
	// stale disconnect never clobbers a newer reconnect's presence.
	MarkOffline(ctx context.Context, userID domain.UserID, connID string) error
	IsOnline(ctx context.Context, userID domain.UserID) (bool, error)
	// Owner returns the connection currently bound to userID, "" if offline.
	Owner(ctx context.Context, userID domain.UserID) (string, error)
}

// MatchRepository holds per-skill FIFO queues and per-user match state.
// RunMatchRound executes the whole pop/validate/claim/enqueue sequence as one
// atomic round so two concurrent rounds can never double-match a candidate.
type MatchRepository interface {
	// RunMatchRound pops candidates per skill in list order, discards stale
	// entries, and either claims a match (both states -> MATCHED, both users
	// removed from every queue) or enqueues the requester on every skill.
	// On match it returns the matched user and the skill that paired them.
	RunMatchRound(ctx context.Context, userID domain.UserID, skills []string) (matched domain.UserID, skill string, err error)
	// CancelMatching removes the user from all queues and forces state IDLE.
	CancelMatching(ctx context.Context, userID domain.UserID) error
	GetState(ctx context.Context, userID domain.UserID) (domain.MatchState, error)
	SetState(ctx context.Context, userID domain.UserID, state domain.MatchState) error
}

// CallStore holds active call records. Update performs a compare-on-version
// write: it fails with domain.ErrVersionConflict when the stored version no
// longer matches call.Version, and bumps the version on success.
type CallStore interface {
	Create(ctx context.Context, call *domain.Call) error
	Get(ctx context.Context, id domain.CallID) (*domain.Call, error)
	Update(ctx context.Context, call *domain.Call) error
	Remove(ctx context.Context, id domain.CallID) error
	// ListByUser returns calls where userID is a participant.
	ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Call, error)
}
