package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/database"
)

// TokenStore definition read-only auth token source
type TokenStore interface {
	// GetToken 沒有 token 時回傳 domain.ErrNoToken
	GetToken(ctx context.Context) (string, error)
}

// StaticTokenStore token from env / config
type StaticTokenStore struct {
	token string
}

// NewStaticTokenStore create StaticTokenStore
func NewStaticTokenStore(token string) *StaticTokenStore {
	return &StaticTokenStore{token: strings.TrimSpace(token)}
}

// GetToken return token or ErrNoToken
func (s *StaticTokenStore) GetToken(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", domain.ErrNoToken
	}
	return s.token, nil
}

// RedisTokenStore session json written by the sign-in flow
type RedisTokenStore struct {
	repo database.RedisRepository[domain.AuthSession]
	key  string
	now  func() time.Time
}

// NewRedisTokenStore create RedisTokenStore
func NewRedisTokenStore(repo database.RedisRepository[domain.AuthSession], key string) *RedisTokenStore {
	return &RedisTokenStore{repo: repo, key: key, now: time.Now}
}

// GetToken read session, missing / expired session is ErrNoToken
func (s *RedisTokenStore) GetToken(ctx context.Context) (string, error) {
	session, err := s.repo.Get(ctx, s.key)
	if errors.Is(err, database.ErrRedisNil) {
		return "", domain.ErrNoToken
	}
	if err != nil {
		return "", err
	}
	if session.Token == "" {
		return "", domain.ErrNoToken
	}
	if session.ExpiresAt > 0 && s.now().Unix() >= session.ExpiresAt {
		return "", domain.ErrNoToken
	}
	return session.Token, nil
}
