package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"skillcall/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// CredentialService mints short-lived TURN credentials understood by TURN
// servers implementing the REST-API credential scheme: the username encodes
// the expiry and the credential is an HMAC-SHA1 over it.
type CredentialService struct {
	secret   []byte
	ttl      time.Duration
	stunURLs []string
	turnURLs []string

	now func() time.Time
}

func NewCredentialService(secret string, ttl time.Duration, stunURLs, turnURLs []string) *CredentialService {
	return &CredentialService{
		secret:   []byte(secret),
		ttl:      ttl,
		stunURLs: stunURLs,
		turnURLs: turnURLs,
		now:      time.Now,
	}
}

// Mint derives a credential for one user and call. Stateless: the same
// inputs at the same instant always produce the same credential.
func (s *CredentialService) Mint(userID domain.UserID, callID domain.CallID) domain.IceServerCredential {
	expiresAt := s.now().Add(s.ttl)
	username := fmt.Sprintf("%d:%s:%s", expiresAt.Unix(), userID, callID)

	mac := hmac.New(sha1.New, s.secret)
	mac.Write([]byte(username))

	return domain.IceServerCredential{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiresAt:  expiresAt,
	}
}

// ICEServers returns the ICE server list for a call: STUN entries without
// credentials plus TURN entries carrying a freshly minted credential.
func (s *CredentialService) ICEServers(userID domain.UserID, callID domain.CallID) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)

	if len(s.stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: s.stunURLs})
	}

	if len(s.turnURLs) > 0 {
		cred := s.Mint(userID, callID)
		servers = append(servers, webrtc.ICEServer{
			URLs:           s.turnURLs,
			Username:       cred.Username,
			Credential:     cred.Credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	return servers
}
