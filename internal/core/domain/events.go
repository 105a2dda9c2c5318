package domain

import "time"

// Broker subjects for durable session lifecycle events. Downstream consumers
// are expected to upsert idempotently by sessionId.
const (
	SubjectSessionStarted = "session.started"
	SubjectSessionEnded   = "session.ended"
)

type SessionStartedEvent struct {
	SessionID SessionID `json:"sessionId"`
	UserA     UserID    `json:"userA"`
	UserB     UserID    `json:"userB"`
	StartedAt time.Time `json:"startedAt"`
}

type SessionEndedEvent struct {
	SessionID SessionID `json:"sessionId"`
	EndedAt   time.Time `json:"endedAt"`
	Reason    string    `json:"reason"`
}
