package ports

import (
	"context"
	"encoding/json"

	"skillcall/internal/core/domain"
)

// Notifier delivers outbound protocol messages to a user's live connection.
// Send is best-effort: delivery to a disconnected user is not an error the
// caller can act on, so implementations report it and move on.
type Notifier interface {
	Send(userID domain.UserID, msgType string, payload interface{}) error
	IsConnected(userID domain.UserID) bool
}

// EventPublisher emits durable session lifecycle events to the broker with
// at-least-once semantics. Publish must never block the signaling hot path;
// failed publishes are retried in the background and loss is never silent.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
	Close() error
}

// SignalForwarder is the gateway-facing entry point of the signaling relay:
// messages referencing a call are validated against its participants and
// forwarded verbatim to the peer.
type SignalForwarder interface {
	Forward(ctx context.Context, sender domain.UserID, callID domain.CallID, msgType string, payload json.RawMessage) error
}
