package services

import (
	"context"
	"time"

	"skillcall/internal/core/domain"
	"skillcall/internal/core/ports"
	"skillcall/pkg/utils"
	"skillcall/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MsgMatchFound = "match:found"

type MatchService interface {
	// StartMatch runs one matching round for the user. It returns the
	// session when a peer was found; a nil session means the user was
	// enqueued and will be notified via match:found later.
	StartMatch(ctx context.Context, userID domain.UserID, skills []string) (*domain.MatchSession, error)
	// CancelMatching removes the user from all queues and resets state to
	// IDLE. Safe to call regardless of current state.
	CancelMatching(ctx context.Context, userID domain.UserID) error
}

type matchService struct {
	matches  ports.MatchRepository
	presence ports.PresenceRepository
	callSvc  CallService
	notifier ports.Notifier
	logger   *zap.SugaredLogger

	maxSkills int
	autoCall  bool

	now func() time.Time
}

func NewMatchService(
	matches ports.MatchRepository,
	presence ports.PresenceRepository,
	callSvc CallService,
	notifier ports.Notifier,
	logger *zap.SugaredLogger,
	maxSkills int,
	autoCall bool,
) MatchService {
	return &matchService{
		matches:   matches,
		presence:  presence,
		callSvc:   callSvc,
		notifier:  notifier,
		logger:    logger,
		maxSkills: maxSkills,
		autoCall:  autoCall,
		now:       time.Now,
	}
}

func (s *matchService) StartMatch(ctx context.Context, userID domain.UserID, skills []string) (*domain.MatchSession, error) {
	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, domain.ErrUserOffline
	}

	state, err := s.matches.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == domain.MatchMatched || state == domain.MatchInCall {
		return nil, domain.ErrAlreadyMatched
	}

	normalized := utils.NormalizeSkills(skills)
	if len(normalized) == 0 {
		return nil, domain.ErrNoSkills
	}
	if err := validation.ValidateSkills(normalized, s.maxSkills); err != nil {
		return nil, domain.ErrNoSkills
	}

	matched, skill, err := s.matches.RunMatchRound(ctx, userID, normalized)
	if err != nil {
		return nil, err
	}
	if matched == "" {
		s.logger.Debugw("no compatible peer, enqueued",
			"user_id", userID, "skills", normalized)
		return nil, nil
	}

	session := &domain.MatchSession{
		SessionID: domain.SessionID(uuid.New().String()),
		UserA:     userID,
		UserB:     matched,
		Skill:     skill,
		CreatedAt: s.now(),
	}

	s.announce(session, userID)
	s.announce(session, matched)

	s.logger.Infow("match found",
		"session_id", session.SessionID, "user_a", userID, "user_b", matched, "skill", skill)

	if s.autoCall {
		call, err := s.callSvc.CreateCall(ctx, session.SessionID, userID, matched, domain.OriginMatched)
		if err != nil {
			s.logger.Errorw("failed to pre-create call for match",
				"session_id", session.SessionID, "error", err)
		} else if err := s.notifier.Send(matched, MsgCallIncoming, map[string]interface{}{
			"callId": call.ID,
			"from":   userID,
		}); err != nil {
			s.logger.Debugw("call:incoming not delivered", "user_id", matched, "error", err)
		}
	}

	return session, nil
}

func (s *matchService) CancelMatching(ctx context.Context, userID domain.UserID) error {
	if err := s.matches.CancelMatching(ctx, userID); err != nil {
		return err
	}
	s.logger.Debugw("matching cancelled", "user_id", userID)
	return nil
}

func (s *matchService) announce(session *domain.MatchSession, userID domain.UserID) {
	payload := map[string]interface{}{
		"sessionId": session.SessionID,
		"peerId":    session.Peer(userID),
		"skill":     session.Skill,
	}
	if err := s.notifier.Send(userID, MsgMatchFound, payload); err != nil {
		s.logger.Debugw("match:found not delivered", "user_id", userID, "error", err)
	}
}
