package repository

import (
	"context"

	"realtime_chat_client/internal/chat/domain"
)

// UserRepository definition signed-in user lookup
type UserRepository interface {
	Me(ctx context.Context) (domain.UserNode, error)
}

type graphQLUserRepository struct {
	client *GraphQLClient
}

// NewGraphQLUserRepository create a UserRepository
func NewGraphQLUserRepository(client *GraphQLClient) UserRepository {
	return &graphQLUserRepository{client: client}
}

func (r *graphQLUserRepository) Me(ctx context.Context) (domain.UserNode, error) {
	var data struct {
		Me *domain.UserNode `json:"me"`
	}
	if err := r.client.Do(ctx, domain.GraphQLRequest{Query: domain.MeQuery, OperationName: "Me"}, &data); err != nil {
		return domain.UserNode{}, err
	}
	if data.Me == nil || data.Me.ID == "" {
		return domain.UserNode{}, domain.Malformed("me returned no user")
	}
	return *data.Me, nil
}
