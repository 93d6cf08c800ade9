package repository

import (
	"context"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"go.uber.org/zap"
)

// MessageRepository definition room history over graphql
type MessageRepository interface {
	// FetchLatest 最新 limit 則訊息
	FetchLatest(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	// FetchBefore 比 before 舊的 limit 則訊息
	FetchBefore(ctx context.Context, roomID string, before time.Time, limit int) ([]domain.Message, error)
	// SendMessage sendMessage mutation, 回傳 server 產生的訊息
	SendMessage(ctx context.Context, roomID, content string) (domain.Message, error)
}

type graphQLMessageRepository struct {
	client *GraphQLClient
}

// NewGraphQLMessageRepository create a MessageRepository
func NewGraphQLMessageRepository(client *GraphQLClient) MessageRepository {
	return &graphQLMessageRepository{client: client}
}

func (r *graphQLMessageRepository) FetchLatest(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	return r.fetch(ctx, roomID, map[string]interface{}{
		"chatId": roomID,
		"limit":  limit,
	})
}

func (r *graphQLMessageRepository) FetchBefore(ctx context.Context, roomID string, before time.Time, limit int) ([]domain.Message, error) {
	return r.fetch(ctx, roomID, map[string]interface{}{
		"chatId": roomID,
		"limit":  limit,
		"before": before.UTC().Format(time.RFC3339Nano),
	})
}

// fetch 回傳的 slice 長度 == server 給的筆數, 壞掉的訊息保留為 zero value 讓 caller 算 hasMore
func (r *graphQLMessageRepository) fetch(ctx context.Context, roomID string, vars map[string]interface{}) ([]domain.Message, error) {
	var data struct {
		Messages []domain.MessageNode `json:"messages"`
	}
	err := r.client.Do(ctx, domain.GraphQLRequest{
		Query:         domain.MessagesQuery,
		OperationName: "Messages",
		Variables:     vars,
	}, &data)
	if err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, len(data.Messages))
	for i, node := range data.Messages {
		m, err := node.ToMessage(roomID)
		if err != nil {
			logger.Log.Warn("skip malformed message", zap.String("room_id", roomID), zap.Error(err))
			continue
		}
		msgs[i] = m
	}
	return msgs, nil
}

func (r *graphQLMessageRepository) SendMessage(ctx context.Context, roomID, content string) (domain.Message, error) {
	var data struct {
		SendMessage *domain.MessageNode `json:"sendMessage"`
	}
	err := r.client.Do(ctx, domain.GraphQLRequest{
		Query:         domain.SendMessageMutation,
		OperationName: "SendMessage",
		Variables: map[string]interface{}{
			"chatId":  roomID,
			"content": content,
		},
	}, &data)
	if err != nil {
		return domain.Message{}, err
	}
	if data.SendMessage == nil {
		return domain.Message{}, domain.Malformed("sendMessage returned no message")
	}
	return data.SendMessage.ToMessage(roomID)
}
