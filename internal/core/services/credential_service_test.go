package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintCredentialRoundTrip(t *testing.T) {
	svc := NewCredentialService("turn-secret", 600*time.Second,
		[]string{"stun:stun.example.com:3478"},
		[]string{"turn:turn.example.com:3478"})

	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	cred := svc.Mint("alice", "call_1")

	wantUsername := fmt.Sprintf("%d:alice:call_1", fixed.Add(600*time.Second).Unix())
	assert.Equal(t, wantUsername, cred.Username)
	assert.Equal(t, fixed.Add(600*time.Second), cred.ExpiresAt)

	// Credential must verify against an independently recomputed HMAC.
	mac := hmac.New(sha1.New, []byte("turn-secret"))
	mac.Write([]byte(cred.Username))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), cred.Credential)
}

func TestMintDeterministicAtFixedInstant(t *testing.T) {
	svc := NewCredentialService("turn-secret", time.Minute, nil, nil)
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	assert.Equal(t, svc.Mint("alice", "c1"), svc.Mint("alice", "c1"))
	assert.NotEqual(t, svc.Mint("alice", "c1").Credential, svc.Mint("bob", "c1").Credential)
}

func TestICEServers(t *testing.T) {
	svc := NewCredentialService("turn-secret", time.Minute,
		[]string{"stun:stun.example.com:3478"},
		[]string{"turn:turn.example.com:3478"})

	servers := svc.ICEServers("alice", "call_1")
	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)

	assert.Equal(t, []string{"turn:turn.example.com:3478"}, servers[1].URLs)
	assert.NotEmpty(t, servers[1].Username)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestICEServersNoTURNConfigured(t *testing.T) {
	svc := NewCredentialService("turn-secret", time.Minute,
		[]string{"stun:stun.example.com:3478"}, nil)

	servers := svc.ICEServers("alice", "call_1")
	require.Len(t, servers, 1)
	assert.Empty(t, servers[0].Username)
}
