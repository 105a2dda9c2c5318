package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/services"
	"skillcall/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nullPublisher struct{}

func (nullPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (nullPublisher) Close() error                                       { return nil }

type testEnv struct {
	server *httptest.Server
	ws     *WebSocketServer
	auth   services.AuthService
	store  *memory.CallStore
}

func newTestEnv(t *testing.T) *testEnv {
	logger := zap.NewNop().Sugar()
	auth := services.NewAuthService("test-secret", time.Hour, time.Hour)

	presence := memory.NewPresenceRepository(time.Minute)
	matches := memory.NewMatchRepository(presence)
	store := memory.NewCallStore()

	env := &testEnv{auth: auth, store: store}

	var ws *WebSocketServer
	// The notifier is the gateway itself; construct services against a
	// forwarding shim so wiring order does not matter.
	notifier := notifierFunc(func(userID domain.UserID, msgType string, payload interface{}) error {
		return ws.Send(userID, msgType, payload)
	})

	callSvc := services.NewCallService(store, matches, presence, notifier, nullPublisher{},
		logger, 20*time.Second, 180*time.Second)
	matchSvc := services.NewMatchService(matches, presence, callSvc, notifier, logger, 10, true)

	ws = NewWebSocketServer(auth, matchSvc, callSvc, presence, nil, logger, Options{
		PingInterval:      10 * time.Second,
		PongTimeout:       20 * time.Second,
		WriteTimeout:      time.Second,
		SendBufferSize:    32,
		HeartbeatInterval: 10 * time.Second,
		MessagesPerSecond: 100,
		MessageBurst:      100,
	})
	env.ws = ws

	env.server = httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(env.server.Close)
	return env
}

type notifierFunc func(domain.UserID, string, interface{}) error

func (f notifierFunc) Send(userID domain.UserID, msgType string, payload interface{}) error {
	return f(userID, msgType, payload)
}

func (f notifierFunc) IsConnected(domain.UserID) bool { return true }

// testClient reads messages with buffering so out-of-order arrivals between
// message types do not flake the assertions.
type testClient struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []SignalMessage
}

func (e *testEnv) connect(t *testing.T, userID domain.UserID) *testClient {
	token, err := e.auth.GenerateToken(userID, string(userID))
	require.NoError(t, err)

	url := strings.Replace(e.server.URL, "http://", "ws://", 1) + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msgType string, payload interface{}) {
	body, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(SignalMessage{Type: msgType, Payload: body}))
}

// expect returns the next message of the wanted type, buffering others.
func (c *testClient) expect(msgType string) map[string]interface{} {
	for i, msg := range c.pending {
		if msg.Type == msgType {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return decodePayload(c.t, msg)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(deadline)
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return decodePayload(c.t, msg)
		}
		c.pending = append(c.pending, msg)
	}
	c.t.Fatalf("no %s message within deadline", msgType)
	return nil
}

// expectNone asserts no message of the given type arrives within the window.
func (c *testClient) expectNone(msgType string, window time.Duration) {
	for _, msg := range c.pending {
		if msg.Type == msgType {
			c.t.Fatalf("unexpected %s message", msgType)
		}
	}

	c.conn.SetReadDeadline(time.Now().Add(window))
	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return // timeout: nothing arrived
		}
		if msg.Type == msgType {
			c.t.Fatalf("unexpected %s message", msgType)
		}
		c.pending = append(c.pending, msg)
	}
}

func decodePayload(t *testing.T, msg SignalMessage) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Payload, &body))
	return body
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	env := newTestEnv(t)

	url := strings.Replace(env.server.URL, "http://", "ws://", 1)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMatchToCallFlow(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	alice.send(MsgMatchStart, MatchStartPayload{Skills: []string{"go"}})
	// Give alice's round time to enqueue before bob's round runs.
	time.Sleep(50 * time.Millisecond)
	bob.send(MsgMatchStart, MatchStartPayload{Skills: []string{"Go"}})

	aliceFound := alice.expect(services.MsgMatchFound)
	bobFound := bob.expect(services.MsgMatchFound)

	assert.Equal(t, aliceFound["sessionId"], bobFound["sessionId"])
	assert.Equal(t, "bob", aliceFound["peerId"])
	assert.Equal(t, "alice", bobFound["peerId"])
	assert.Equal(t, "go", aliceFound["skill"])

	// Matchmaking pre-created the call: bob matched into alice's queue
	// entry, so bob is the caller and alice gets the invite.
	incoming := alice.expect(services.MsgCallIncoming)
	callID := incoming["callId"].(string)
	assert.Equal(t, "bob", incoming["from"])

	alice.send(MsgCallAccept, CallRefPayload{CallID: domain.CallID(callID)})
	accepted := bob.expect(services.MsgCallAccepted)
	assert.Equal(t, callID, accepted["callId"])

	bob.send(services.MsgWebRTCOffer, map[string]interface{}{
		"callId": callID, "offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})
	offer := alice.expect(services.MsgWebRTCOffer)
	assert.Equal(t, "bob", offer["from"])
	assert.NotNil(t, offer["offer"])

	alice.send(services.MsgWebRTCAnswer, map[string]interface{}{
		"callId": callID, "answer": map[string]string{"type": "answer", "sdp": "v=0"},
	})
	answer := bob.expect(services.MsgWebRTCAnswer)
	assert.Equal(t, "alice", answer["from"])

	// Explicit hangup reaches both sides.
	bob.send(services.MsgCallEnd, CallRefPayload{CallID: domain.CallID(callID), Reason: domain.EndReasonHangup})
	aliceEnd := alice.expect(services.MsgCallEnd)
	bobEnd := bob.expect(services.MsgCallEnd)
	assert.Equal(t, domain.EndReasonHangup, aliceEnd["reason"])
	assert.Equal(t, domain.EndReasonHangup, bobEnd["reason"])
}

func TestNonParticipantSignalingNeverDelivered(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	mallory := env.connect(t, "mallory")

	alice.send(MsgMatchStart, MatchStartPayload{Skills: []string{"go"}})
	time.Sleep(50 * time.Millisecond)
	bob.send(MsgMatchStart, MatchStartPayload{Skills: []string{"go"}})

	incoming := alice.expect(services.MsgCallIncoming)
	callID := incoming["callId"].(string)

	mallory.send(services.MsgWebRTCICE, map[string]interface{}{
		"callId": callID, "candidate": "candidate:0",
	})

	alice.expectNone(services.MsgWebRTCICE, 300*time.Millisecond)
	bob.expectNone(services.MsgWebRTCICE, 300*time.Millisecond)
}

func TestDisconnectEndsCallForPeer(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	alice.send(MsgMatchStart, MatchStartPayload{Skills: []string{"go"}})
	time.Sleep(50 * time.Millisecond)
	bob.send(MsgMatchStart, MatchStartPayload{Skills: []string{"go"}})

	incoming := alice.expect(services.MsgCallIncoming)
	callID := incoming["callId"].(string)

	alice.send(MsgCallAccept, CallRefPayload{CallID: domain.CallID(callID)})
	bob.expect(services.MsgCallAccepted)
	alice.send(services.MsgWebRTCAnswer, map[string]interface{}{
		"callId": callID, "answer": map[string]string{"type": "answer"},
	})
	bob.expect(services.MsgWebRTCAnswer)

	require.NoError(t, alice.conn.Close())

	end := bob.expect(services.MsgCallEnd)
	assert.Equal(t, domain.EndReasonDisconnected, end["reason"])
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "alice")
	alice.send("bogus:type", map[string]string{})

	errMsg := alice.expect(MsgError)
	assert.Equal(t, "INVALID_INPUT", errMsg["code"])
}
