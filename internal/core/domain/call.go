package domain

import "time"

type CallID string

// CallState is the lifecycle state of a call. Terminal states are sticky:
// no transition out of a terminal state is permitted.
type CallState string

const (
	CallInitiating CallState = "INITIATING"
	CallConnecting CallState = "CONNECTING"
	CallConnected  CallState = "CONNECTED"
	CallFailed     CallState = "FAILED"
	CallTimeout    CallState = "TIMEOUT"
	CallEnded      CallState = "ENDED"
)

// Terminal reports whether no further transitions are permitted from s.
func (s CallState) Terminal() bool {
	switch s {
	case CallFailed, CallTimeout, CallEnded:
		return true
	}
	return false
}

// CallOrigin tags how a call came to exist.
type CallOrigin string

const (
	OriginMatched      CallOrigin = "matched"
	OriginDirectInvite CallOrigin = "direct-invite"
)

// End reasons carried on call:end notifications and session.ended events.
const (
	EndReasonHangup       = "HANGUP"
	EndReasonDisconnected = "DISCONNECTED"
	EndReasonTimeLimit    = "TIME_LIMIT"
	EndReasonICEFailed    = "ICE_FAILED"
)

// Call is one signaling session between exactly two participants. Version is
// bumped on every update so distributed stores can detect concurrent writers.
type Call struct {
	ID          CallID     `json:"callId"`
	SessionID   SessionID  `json:"sessionId,omitempty"`
	From        UserID     `json:"from"`
	To          UserID     `json:"to"`
	State       CallState  `json:"state"`
	Origin      CallOrigin `json:"origin"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// IsParticipant reports whether u is one of the call's two parties.
func (c *Call) IsParticipant(u UserID) bool {
	return c.From == u || c.To == u
}

// Peer returns the other participant of the call.
func (c *Call) Peer(u UserID) UserID {
	if c.From == u {
		return c.To
	}
	return c.From
}
