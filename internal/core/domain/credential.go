package domain

import "time"

// IceServerCredential is a time-limited TURN credential derived from
// (userId, callId, secret, ttl). Never persisted; recomputable on demand.
type IceServerCredential struct {
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
