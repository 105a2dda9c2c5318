package services

import (
	"context"
	"sync"

	"skillcall/internal/core/domain"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) MarkOnline(ctx context.Context, userID domain.UserID, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

func (m *MockPresenceRepository) Refresh(ctx context.Context, userID domain.UserID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceRepository) MarkOffline(ctx context.Context, userID domain.UserID, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

func (m *MockPresenceRepository) IsOnline(ctx context.Context, userID domain.UserID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPresenceRepository) Owner(ctx context.Context, userID domain.UserID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) RunMatchRound(ctx context.Context, userID domain.UserID, skills []string) (domain.UserID, string, error) {
	args := m.Called(ctx, userID, skills)
	return args.Get(0).(domain.UserID), args.String(1), args.Error(2)
}

func (m *MockMatchRepository) CancelMatching(ctx context.Context, userID domain.UserID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockMatchRepository) GetState(ctx context.Context, userID domain.UserID) (domain.MatchState, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.MatchState), args.Error(1)
}

func (m *MockMatchRepository) SetState(ctx context.Context, userID domain.UserID, state domain.MatchState) error {
	args := m.Called(ctx, userID, state)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	args := m.Called(ctx, subject, payload)
	return args.Error(0)
}

func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// recordingNotifier collects outbound messages per user for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
}

type sentMessage struct {
	UserID  domain.UserID
	Type    string
	Payload interface{}
}

func (n *recordingNotifier) Send(userID domain.UserID, msgType string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, sentMessage{UserID: userID, Type: msgType, Payload: payload})
	return nil
}

func (n *recordingNotifier) IsConnected(domain.UserID) bool { return true }

func (n *recordingNotifier) sent(userID domain.UserID, msgType string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.messages {
		if m.UserID == userID && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}
