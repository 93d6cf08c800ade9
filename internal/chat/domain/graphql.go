package domain

import "encoding/json"

// GraphQLRequest POST body
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse {data?, errors?}
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// AuthSession session stored by the sign-in flow (redis token store)
type AuthSession struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// queries
const (
	MessagesQuery = `query Messages($chatId: String!, $limit: Int, $before: String) {
  messages(chatId: $chatId, limit: $limit, before: $before) {
    id
    content
    insertedAt
    user { id username firstName lastName }
  }
}`

	SendMessageMutation = `mutation SendMessage($chatId: String!, $content: String!) {
  sendMessage(chatId: $chatId, content: $content) {
    id
    content
    insertedAt
    user { id username firstName lastName }
  }
}`

	UserChatsQuery = `query UserChats {
  userChats {
    id
    name
    private
    members { id username firstName lastName }
  }
}`

	MeQuery = `query Me {
  me { id username email firstName lastName }
}`
)
