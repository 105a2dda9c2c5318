package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Signaling message types routed through the relay.
const (
	MsgWebRTCOffer     = "webrtc:offer"
	MsgWebRTCAnswer    = "webrtc:answer"
	MsgWebRTCICE       = "webrtc:ice"
	MsgWebRTCICEFailed = "webrtc:ice-failed"
	MsgCallIncoming    = "call:incoming"
	MsgCallAccepted    = "call:accepted"
	MsgCallTimeout     = "call:timeout"
	MsgCallEnd         = "call:end"
)

// updateRetries bounds optimistic-versioning retries on guarded transitions.
const updateRetries = 3

type CallService interface {
	// CreateCall registers a new call in INITIATING and arms the accept
	// timeout. sessionID may be empty for direct invites; one is generated.
	CreateCall(ctx context.Context, sessionID domain.SessionID, from, to domain.UserID, origin domain.CallOrigin) (*domain.Call, error)
	// Initiate is the direct-invite entry point: verifies the callee is
	// online, creates the call and delivers call:incoming.
	Initiate(ctx context.Context, from, to domain.UserID) (*domain.Call, error)
	// Accept moves INITIATING -> CONNECTING on the callee's explicit accept.
	Accept(ctx context.Context, userID domain.UserID, callID domain.CallID) error
	// Forward relays an offer/answer/ice payload verbatim to the peer,
	// applying the associated state transition. Non-participants and
	// unknown/terminal calls are dropped silently.
	Forward(ctx context.Context, sender domain.UserID, callID domain.CallID, msgType string, payload json.RawMessage) error
	// ICEFailed moves any non-terminal state to FAILED.
	ICEFailed(ctx context.Context, userID domain.UserID, callID domain.CallID) error
	// End moves any non-terminal state to ENDED with the given reason.
	End(ctx context.Context, userID domain.UserID, callID domain.CallID, reason string) error
	// EndAllOwnedBy force-ends every call the user participates in.
	EndAllOwnedBy(ctx context.Context, userID domain.UserID, reason string) error
}

type callService struct {
	calls     ports.CallStore
	matches   ports.MatchRepository
	presence  ports.PresenceRepository
	notifier  ports.Notifier
	publisher ports.EventPublisher
	logger    *zap.SugaredLogger

	acceptTimeout time.Duration
	maxDuration   time.Duration

	now   func() time.Time
	after func(time.Duration, func()) // overridable timer hook for tests
}

func NewCallService(
	calls ports.CallStore,
	matches ports.MatchRepository,
	presence ports.PresenceRepository,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
	logger *zap.SugaredLogger,
	acceptTimeout time.Duration,
	maxDuration time.Duration,
) CallService {
	return &callService{
		calls:         calls,
		matches:       matches,
		presence:      presence,
		notifier:      notifier,
		publisher:     publisher,
		logger:        logger,
		acceptTimeout: acceptTimeout,
		maxDuration:   maxDuration,
		now:           time.Now,
		after:         func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

func (s *callService) CreateCall(ctx context.Context, sessionID domain.SessionID, from, to domain.UserID, origin domain.CallOrigin) (*domain.Call, error) {
	if sessionID == "" {
		sessionID = domain.SessionID(uuid.New().String())
	}

	call := &domain.Call{
		ID:        domain.CallID(uuid.New().String()),
		SessionID: sessionID,
		From:      from,
		To:        to,
		State:     domain.CallInitiating,
		Origin:    origin,
		CreatedAt: s.now(),
	}

	if err := s.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	s.armAcceptTimeout(call.ID)

	s.logger.Infow("call created",
		"call_id", call.ID, "from", from, "to", to, "origin", origin)
	return call, nil
}

func (s *callService) Initiate(ctx context.Context, from, to domain.UserID) (*domain.Call, error) {
	if from == to {
		return nil, domain.ErrNotParticipant
	}

	online, err := s.presence.IsOnline(ctx, to)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, domain.ErrUserOffline
	}

	call, err := s.CreateCall(ctx, "", from, to, domain.OriginDirectInvite)
	if err != nil {
		return nil, err
	}

	s.notify(to, MsgCallIncoming, map[string]interface{}{
		"callId": call.ID,
		"from":   from,
	})
	return call, nil
}

func (s *callService) Accept(ctx context.Context, userID domain.UserID, callID domain.CallID) error {
	call, ok := s.participantCall(ctx, userID, callID, "call:accept")
	if !ok {
		return nil
	}
	if userID != call.To {
		// Only the callee accepts.
		s.logger.Debugw("accept from caller ignored", "call_id", callID, "user_id", userID)
		return nil
	}

	changed, err := s.transition(ctx, callID, func(c *domain.Call) bool {
		if c.State != domain.CallInitiating {
			return false
		}
		c.State = domain.CallConnecting
		return true
	})
	if err != nil {
		return err
	}
	if changed {
		s.notify(call.From, MsgCallAccepted, map[string]interface{}{
			"callId": callID,
			"to":     call.To,
		})
	}
	return nil
}

func (s *callService) Forward(ctx context.Context, sender domain.UserID, callID domain.CallID, msgType string, payload json.RawMessage) error {
	call, ok := s.participantCall(ctx, sender, callID, msgType)
	if !ok {
		return nil
	}

	// The authenticated identity overwrites any payload-supplied "from".
	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		s.logger.Debugw("malformed signaling payload dropped",
			"call_id", callID, "type", msgType, "error", err)
		return nil
	}
	body["from"] = sender

	s.notify(call.Peer(sender), msgType, body)

	if msgType == MsgWebRTCAnswer {
		return s.onAnswer(ctx, callID)
	}
	return nil
}

// onAnswer applies CONNECTING -> CONNECTED; on that exact edge it publishes
// session.started, marks both users IN_CALL and arms the duration limit.
func (s *callService) onAnswer(ctx context.Context, callID domain.CallID) error {
	var connected *domain.Call
	changed, err := s.transition(ctx, callID, func(c *domain.Call) bool {
		if c.State != domain.CallConnecting {
			return false
		}
		now := s.now()
		c.State = domain.CallConnected
		c.ConnectedAt = &now
		connected = c
		return true
	})
	if err != nil || !changed {
		return err
	}

	s.setMatchStates(ctx, connected, domain.MatchInCall)

	event := domain.SessionStartedEvent{
		SessionID: connected.SessionID,
		UserA:     connected.From,
		UserB:     connected.To,
		StartedAt: *connected.ConnectedAt,
	}
	if err := s.publisher.Publish(ctx, domain.SubjectSessionStarted, event); err != nil {
		s.logger.Errorw("failed to publish session.started",
			"session_id", connected.SessionID, "error", err)
	}

	s.armDurationLimit(callID)
	return nil
}

func (s *callService) ICEFailed(ctx context.Context, userID domain.UserID, callID domain.CallID) error {
	call, ok := s.participantCall(ctx, userID, callID, MsgWebRTCICEFailed)
	if !ok {
		return nil
	}
	return s.terminate(ctx, call.ID, domain.CallFailed, domain.EndReasonICEFailed)
}

func (s *callService) End(ctx context.Context, userID domain.UserID, callID domain.CallID, reason string) error {
	call, ok := s.participantCall(ctx, userID, callID, MsgCallEnd)
	if !ok {
		return nil
	}
	if reason == "" {
		reason = domain.EndReasonHangup
	}
	return s.terminate(ctx, call.ID, domain.CallEnded, reason)
}

func (s *callService) EndAllOwnedBy(ctx context.Context, userID domain.UserID, reason string) error {
	calls, err := s.calls.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, call := range calls {
		if err := s.terminate(ctx, call.ID, domain.CallEnded, reason); err != nil {
			s.logger.Errorw("failed to end call on disconnect",
				"call_id", call.ID, "user_id", userID, "error", err)
		}
	}
	return nil
}

// terminate applies a terminal transition once, notifies both parties,
// publishes session.ended for calls that reached CONNECTED, releases match
// state and removes the record. Calls already terminal are left untouched.
func (s *callService) terminate(ctx context.Context, callID domain.CallID, state domain.CallState, reason string) error {
	var prev domain.CallState
	var ended *domain.Call
	changed, err := s.transition(ctx, callID, func(c *domain.Call) bool {
		if c.State.Terminal() {
			return false
		}
		prev = c.State
		c.State = state
		ended = c
		return true
	})
	if err != nil || !changed {
		return err
	}

	payload := map[string]interface{}{"callId": callID, "reason": reason}
	s.notify(ended.From, MsgCallEnd, payload)
	s.notify(ended.To, MsgCallEnd, payload)

	// A session that never reached CONNECTED never started; nothing to record.
	if prev == domain.CallConnected {
		event := domain.SessionEndedEvent{
			SessionID: ended.SessionID,
			EndedAt:   s.now(),
			Reason:    reason,
		}
		if err := s.publisher.Publish(ctx, domain.SubjectSessionEnded, event); err != nil {
			s.logger.Errorw("failed to publish session.ended",
				"session_id", ended.SessionID, "error", err)
		}
	}

	s.setMatchStates(ctx, ended, domain.MatchIdle)
	s.removeCall(ctx, callID)

	s.logger.Infow("call terminated",
		"call_id", callID, "state", state, "reason", reason, "previous", prev)
	return nil
}

// armAcceptTimeout arms the single-shot INITIATING timeout. The handle is
// never cancelled; it re-checks state when it fires.
func (s *callService) armAcceptTimeout(callID domain.CallID) {
	s.after(s.acceptTimeout, func() {
		ctx := context.Background()

		var timedOut *domain.Call
		changed, err := s.transition(ctx, callID, func(c *domain.Call) bool {
			if c.State != domain.CallInitiating {
				return false
			}
			c.State = domain.CallTimeout
			timedOut = c
			return true
		})
		if err != nil {
			s.logger.Errorw("accept timeout check failed", "call_id", callID, "error", err)
			return
		}
		if !changed {
			return
		}

		payload := map[string]interface{}{"callId": callID}
		s.notify(timedOut.From, MsgCallTimeout, payload)
		s.notify(timedOut.To, MsgCallTimeout, payload)

		s.setMatchStates(ctx, timedOut, domain.MatchIdle)
		s.removeCall(ctx, callID)

		s.logger.Infow("call timed out waiting for accept", "call_id", callID)
	})
}

// armDurationLimit arms the max-duration timer once the call is CONNECTED.
func (s *callService) armDurationLimit(callID domain.CallID) {
	s.after(s.maxDuration, func() {
		ctx := context.Background()

		call, err := s.calls.Get(ctx, callID)
		if err != nil || call.State != domain.CallConnected {
			return
		}
		if err := s.terminate(ctx, callID, domain.CallEnded, domain.EndReasonTimeLimit); err != nil {
			s.logger.Errorw("duration limit enforcement failed", "call_id", callID, "error", err)
		}
	})
}

// participantCall resolves a call for a signaling operation. Unknown calls,
// terminal calls and non-participant senders are dropped silently so call
// existence never leaks to unrelated parties.
func (s *callService) participantCall(ctx context.Context, sender domain.UserID, callID domain.CallID, msgType string) (*domain.Call, bool) {
	call, err := s.calls.Get(ctx, callID)
	if err != nil {
		s.logger.Debugw("signaling for unknown call dropped",
			"call_id", callID, "type", msgType, "sender", sender)
		return nil, false
	}
	if !call.IsParticipant(sender) {
		s.logger.Debugw("signaling from non-participant dropped",
			"call_id", callID, "type", msgType, "sender", sender)
		return nil, false
	}
	if call.State.Terminal() {
		s.logger.Debugw("signaling for terminal call dropped",
			"call_id", callID, "type", msgType, "state", call.State)
		return nil, false
	}
	return call, true
}

// transition applies fn under optimistic versioning. fn returns false to
// decline the transition (wrong state), leaving the record untouched.
func (s *callService) transition(ctx context.Context, callID domain.CallID, fn func(*domain.Call) bool) (bool, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		call, err := s.calls.Get(ctx, callID)
		if err != nil {
			if err == domain.ErrCallNotFound {
				return false, nil
			}
			return false, err
		}

		if !fn(call) {
			return false, nil
		}

		err = s.calls.Update(ctx, call)
		if err == nil {
			return true, nil
		}
		if err != domain.ErrVersionConflict {
			return false, err
		}
	}
	return false, domain.ErrVersionConflict
}

func (s *callService) setMatchStates(ctx context.Context, call *domain.Call, state domain.MatchState) {
	for _, u := range []domain.UserID{call.From, call.To} {
		if err := s.matches.SetState(ctx, u, state); err != nil {
			s.logger.Errorw("failed to update match state",
				"user_id", u, "state", state, "error", err)
		}
	}
}

func (s *callService) removeCall(ctx context.Context, callID domain.CallID) {
	if err := s.calls.Remove(ctx, callID); err != nil {
		s.logger.Errorw("failed to remove call record", "call_id", callID, "error", err)
	}
}

func (s *callService) notify(userID domain.UserID, msgType string, payload interface{}) {
	if err := s.notifier.Send(userID, msgType, payload); err != nil {
		s.logger.Debugw("notification not delivered",
			"user_id", userID, "type", msgType, "error", err)
	}
}
