package repository

import (
	"context"

	"realtime_chat_client/internal/chat/domain"
)

// ChatRepository definition the signed-in user's chat list
type ChatRepository interface {
	// UserChats 使用者所在的房間
	UserChats(ctx context.Context) ([]domain.Chat, error)
}

type graphQLChatRepository struct {
	client *GraphQLClient
}

// NewGraphQLChatRepository create a ChatRepository
func NewGraphQLChatRepository(client *GraphQLClient) ChatRepository {
	return &graphQLChatRepository{client: client}
}

func (r *graphQLChatRepository) UserChats(ctx context.Context) ([]domain.Chat, error) {
	var data struct {
		UserChats []domain.Chat `json:"userChats"`
	}
	err := r.client.Do(ctx, domain.GraphQLRequest{Query: domain.UserChatsQuery, OperationName: "UserChats"}, &data)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Chat, 0, len(data.UserChats))
	for _, c := range data.UserChats {
		if c.ID == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
