package domain

import "time"

type SessionID string

// MatchState tracks a user's progress through the matchmaking lifecycle.
// A user occupies exactly one state at a time; an absent record reads as IDLE.
type MatchState string

const (
	MatchIdle      MatchState = "IDLE"
	MatchSearching MatchState = "SEARCHING"
	MatchMatched   MatchState = "MATCHED"
	MatchInCall    MatchState = "IN_CALL"
)

// MatchSession is the immutable record of a successful pairing. Produced once
// per match, consumed by both parties to bootstrap signaling, never mutated.
type MatchSession struct {
	SessionID SessionID `json:"sessionId"`
	UserA     UserID    `json:"userA"`
	UserB     UserID    `json:"userB"`
	Skill     string    `json:"skill"`
	CreatedAt time.Time `json:"createdAt"`
}

// Peer returns the other participant of the session.
func (s *MatchSession) Peer(u UserID) UserID {
	if s.UserA == u {
		return s.UserB
	}
	return s.UserA
}

// MatchResult is the outcome of one matching round: either a session was
// produced, or the requester was enqueued on its skill queues.
type MatchResult struct {
	Session  *MatchSession
	Enqueued bool
}
