package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"
	"skillcall/internal/core/services"
	"skillcall/internal/infrastructure/monitoring"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options carries the gateway's tunables out of the config package.
type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	HeartbeatInterval time.Duration
	MessagesPerSecond float64
	MessageBurst      int
	AllowedOrigins    []string
}

// client is one authenticated websocket connection. Reads are dispatched
// serially in arrival order; writes go through the buffered send channel so
// a slow consumer never blocks the dispatcher.
type client struct {
	userID  domain.UserID
	connID  string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketServer is the connection gateway: it authenticates handshakes,
// tracks live connections per user, refreshes presence on a heartbeat and
// dispatches inbound protocol messages to the match and call services.
// It is also the ports.Notifier the services deliver outbound messages to.
type WebSocketServer struct {
	auth     services.AuthService
	matchSvc services.MatchService
	callSvc  services.CallService
	presence ports.PresenceRepository
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger

	opts     Options
	upgrader websocket.Upgrader

	connections map[domain.UserID]*client
	mu          sync.RWMutex
}

func NewWebSocketServer(
	auth services.AuthService,
	matchSvc services.MatchService,
	callSvc services.CallService,
	presence ports.PresenceRepository,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
	opts Options,
) *WebSocketServer {
	s := &WebSocketServer{
		auth:        auth,
		matchSvc:    matchSvc,
		callSvc:     callSvc,
		presence:    presence,
		metrics:     metrics,
		logger:      logger,
		opts:        opts,
		connections: make(map[domain.UserID]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates the handshake, upgrades the connection and
// runs the read loop until disconnect. The resolved userID from the token is
// the only identity ever trusted; payload-supplied identities are ignored.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	cl := &client{
		userID: userID,
		connID: uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, s.opts.SendBufferSize),
		done:   make(chan struct{}),
	}
	if s.opts.MessagesPerSecond > 0 {
		cl.limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}

	s.register(cl)
	defer s.cleanup(cl)

	ctx := r.Context()
	if err := s.presence.MarkOnline(ctx, userID, cl.connID); err != nil {
		s.logger.Errorw("failed to mark presence", "user_id", userID, "error", err)
	}
	s.metrics.RecordConnectionOpened()

	s.logger.Infow("client connected",
		"user_id", userID, "connection_id", cl.connID)

	go s.writePump(cl)
	s.readLoop(cl)
}

// register binds the client to its user, closing any previous connection
// under the same identity (reconnect replaces).
func (s *WebSocketServer) register(cl *client) {
	s.mu.Lock()
	old := s.connections[cl.userID]
	s.connections[cl.userID] = cl
	s.mu.Unlock()

	if old != nil {
		s.logger.Infow("closing superseded connection",
			"user_id", cl.userID, "connection_id", old.connID)
		old.close()
	}
}

// cleanup releases everything this connection owns. It is idempotent, and a
// reconnect that already replaced the registry entry downgrades it to a
// presence compare-and-delete: the new connection's state must survive.
func (s *WebSocketServer) cleanup(cl *client) {
	cl.close()

	s.mu.Lock()
	owner := s.connections[cl.userID] == cl
	if owner {
		delete(s.connections, cl.userID)
	}
	s.mu.Unlock()

	s.metrics.RecordConnectionClosed()

	ctx := context.Background()
	if owner {
		if err := s.matchSvc.CancelMatching(ctx, cl.userID); err != nil {
			s.logger.Errorw("failed to cancel matching on disconnect",
				"user_id", cl.userID, "error", err)
		}
		if err := s.callSvc.EndAllOwnedBy(ctx, cl.userID, domain.EndReasonDisconnected); err != nil {
			s.logger.Errorw("failed to end calls on disconnect",
				"user_id", cl.userID, "error", err)
		}
	}
	if err := s.presence.MarkOffline(ctx, cl.userID, cl.connID); err != nil {
		s.logger.Errorw("failed to clear presence",
			"user_id", cl.userID, "error", err)
	}

	s.logger.Infow("client disconnected",
		"user_id", cl.userID, "connection_id", cl.connID, "owner", owner)
}

// readLoop processes inbound messages one at a time in arrival order.
func (s *WebSocketServer) readLoop(cl *client) {
	cl.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	for {
		var msg SignalMessage
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read error", "user_id", cl.userID, "error", err)
			}
			return
		}
		cl.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if cl.limiter != nil && !cl.limiter.Allow() {
			s.metrics.RecordSignalDropped("rate_limited")
			s.sendError(cl.userID, "RATE_LIMIT_EXCEEDED", "too many messages")
			continue
		}

		s.metrics.RecordSignalMessage(msg.Type)
		if err := s.dispatch(context.Background(), cl, msg); err != nil {
			s.sendError(cl.userID, "INVALID_INPUT", err.Error())
		}
	}
}

// writePump owns all writes on the socket: queued outbound messages,
// protocol pings and the presence heartbeat for the connection's lifetime.
func (s *WebSocketServer) writePump(cl *client) {
	pingTicker := time.NewTicker(s.opts.PingInterval)
	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer pingTicker.Stop()
	defer heartbeat.Stop()
	defer cl.close()

	for {
		select {
		case data, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-pingTicker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := s.presence.Refresh(context.Background(), cl.userID); err != nil {
				s.logger.Errorw("presence refresh failed",
					"user_id", cl.userID, "error", err)
			}

		case <-cl.done:
			return
		}
	}
}

func (s *WebSocketServer) dispatch(ctx context.Context, cl *client, msg SignalMessage) error {
	switch msg.Type {
	case MsgMatchStart:
		var payload MatchStartPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("invalid match:start payload")
		}
		s.metrics.RecordMatchRequest()
		session, err := s.matchSvc.StartMatch(ctx, cl.userID, payload.Skills)
		if err != nil {
			return err
		}
		if session != nil {
			s.metrics.RecordMatchFound()
		}
		return nil

	case MsgMatchCancel:
		return s.matchSvc.CancelMatching(ctx, cl.userID)

	case MsgCallInitiate:
		var payload CallInitiatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.To == "" {
			return fmt.Errorf("invalid call:initiate payload")
		}
		_, err := s.callSvc.Initiate(ctx, cl.userID, payload.To)
		return err

	case MsgCallAccept:
		var payload CallRefPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.CallID == "" {
			return fmt.Errorf("invalid call:accept payload")
		}
		return s.callSvc.Accept(ctx, cl.userID, payload.CallID)

	case services.MsgWebRTCOffer, services.MsgWebRTCAnswer, services.MsgWebRTCICE:
		var ref CallRefPayload
		if err := json.Unmarshal(msg.Payload, &ref); err != nil || ref.CallID == "" {
			return fmt.Errorf("invalid signaling payload")
		}
		return s.callSvc.Forward(ctx, cl.userID, ref.CallID, msg.Type, msg.Payload)

	case services.MsgWebRTCICEFailed:
		var ref CallRefPayload
		if err := json.Unmarshal(msg.Payload, &ref); err != nil || ref.CallID == "" {
			return fmt.Errorf("invalid ice-failed payload")
		}
		return s.callSvc.ICEFailed(ctx, cl.userID, ref.CallID)

	case services.MsgCallEnd:
		var ref CallRefPayload
		if err := json.Unmarshal(msg.Payload, &ref); err != nil || ref.CallID == "" {
			return fmt.Errorf("invalid call:end payload")
		}
		return s.callSvc.End(ctx, cl.userID, ref.CallID, ref.Reason)

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// Send implements ports.Notifier. Delivery is best-effort: a full send
// buffer means the consumer is too slow and the message is dropped loudly.
func (s *WebSocketServer) Send(userID domain.UserID, msgType string, payload interface{}) error {
	s.mu.RLock()
	cl := s.connections[userID]
	s.mu.RUnlock()

	if cl == nil {
		return fmt.Errorf("user %s is not connected", userID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	data, err := json.Marshal(SignalMessage{Type: msgType, Payload: body})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case cl.send <- data:
		return nil
	default:
		s.metrics.RecordSignalDropped("send_buffer_full")
		return fmt.Errorf("send buffer full for user %s", userID)
	}
}

// IsConnected implements ports.Notifier.
func (s *WebSocketServer) IsConnected(userID domain.UserID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[userID] != nil
}

// ConnectionCount reports live connections for readiness output.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *WebSocketServer) sendError(userID domain.UserID, code, message string) {
	if err := s.Send(userID, MsgError, ErrorPayload{Code: code, Message: message}); err != nil {
		s.logger.Debugw("error message not delivered", "user_id", userID, "error", err)
	}
}
