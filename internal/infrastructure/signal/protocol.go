package signal

import (
	"encoding/json"

	"skillcall/internal/core/domain"
)

// SignalMessage is the wire envelope for every message in both directions.
type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types. Outbound types live in the services package next to
// the code that emits them.
const (
	MsgMatchStart   = "match:start"
	MsgMatchCancel  = "match:cancel"
	MsgCallInitiate = "call:initiate"
	MsgCallAccept   = "call:accept"
	MsgError        = "error"
)

type MatchStartPayload struct {
	Skills []string `json:"skills"`
}

type CallInitiatePayload struct {
	To domain.UserID `json:"to"`
}

type CallRefPayload struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
