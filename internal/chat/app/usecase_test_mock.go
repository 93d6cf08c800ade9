package app

import (
	"context"
	"time"

	"realtime_chat_client/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// FetchLatest moke fetch newest page
func (m *MockMessageRepository) FetchLatest(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FetchBefore moke fetch older page
func (m *MockMessageRepository) FetchBefore(ctx context.Context, roomID string, before time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, before, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SendMessage moke send message
func (m *MockMessageRepository) SendMessage(ctx context.Context, roomID, content string) (domain.Message, error) {
	args := m.Called(ctx, roomID, content)
	return args.Get(0).(domain.Message), args.Error(1)
}

// MockUserRepository Mock UserRepository
type MockUserRepository struct {
	mock.Mock
}

// Me moke current user
func (m *MockUserRepository) Me(ctx context.Context) (domain.UserNode, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.UserNode), args.Error(1)
}

// MockChatRepository Mock ChatRepository
type MockChatRepository struct {
	mock.Mock
}

// UserChats moke chat list
func (m *MockChatRepository) UserChats(ctx context.Context) ([]domain.Chat, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTokenStore Mock TokenStore
type MockTokenStore struct {
	mock.Mock
}

// GetToken moke get token
func (m *MockTokenStore) GetToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockViewPublisher Mock ViewPublisher
type MockViewPublisher struct {
	mock.Mock
}

// Publish moke publish
func (m *MockViewPublisher) Publish(channel string, message interface{}) error {
	args := m.Called(channel, message)
	return args.Error(0)
}
