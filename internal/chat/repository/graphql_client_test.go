package repository

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetNewNop()
}

// startGraphQLServer fiber server on a random port, handler decides the response per request
func startGraphQLServer(t *testing.T, handler func(c *fiber.Ctx, req domain.GraphQLRequest) error) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/graphql", func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer tok" {
			return c.Status(fiber.StatusUnauthorized).SendString("unauthorized")
		}
		var req domain.GraphQLRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		return handler(c, req)
	})
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String() + "/graphql"
}

func newTestClient(url, token string) *GraphQLClient {
	return NewGraphQLClient(url, NewStaticTokenStore(token), 2*time.Second)
}

// 測試 messages query, 壞掉的節點保留位置
func TestGraphQLMessageRepository_Fetch(t *testing.T) {
	var gotVars map[string]interface{}
	url := startGraphQLServer(t, func(c *fiber.Ctx, req domain.GraphQLRequest) error {
		assert.Equal(t, "Messages", req.OperationName)
		gotVars = req.Variables
		return c.JSON(fiber.Map{"data": fiber.Map{"messages": []fiber.Map{
			{"id": "m1", "content": "hi", "insertedAt": "2024-01-01T00:00:01", "user": fiber.Map{"id": "u1", "username": "alice"}},
			{"id": "m2", "content": "broken", "insertedAt": "not a time"},
			{"id": "m3", "content": "yo", "insertedAt": "2024-01-01T00:00:03Z"},
		}}})
	})

	repo := NewGraphQLMessageRepository(newTestClient(url, "tok"))
	before := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	msgs, err := repo.FetchBefore(context.Background(), "r1", before, 3)
	require.NoError(t, err)

	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "r1", msgs[0].RoomID)
	assert.Equal(t, "alice", msgs[0].Author.Username)
	assert.Empty(t, msgs[1].ID)
	assert.Equal(t, "m3", msgs[2].ID)

	assert.Equal(t, "r1", gotVars["chatId"])
	assert.EqualValues(t, 3, gotVars["limit"])
	assert.Equal(t, "2024-01-02T00:00:00Z", gotVars["before"])
}

// 測試 http status / errors[] 轉為 GraphQLError
func TestGraphQLClient_Errors(t *testing.T) {
	url := startGraphQLServer(t, func(c *fiber.Ctx, req domain.GraphQLRequest) error {
		if req.OperationName == "Me" {
			return c.Status(fiber.StatusBadGateway).SendString("upstream down")
		}
		return c.JSON(fiber.Map{"errors": []fiber.Map{{"message": "chat not found"}}})
	})

	repo := NewGraphQLMessageRepository(newTestClient(url, "tok"))
	_, err := repo.FetchLatest(context.Background(), "r404", 20)
	var gqlErr *domain.GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, []string{"chat not found"}, gqlErr.Messages)

	_, err = NewGraphQLUserRepository(newTestClient(url, "tok")).Me(context.Background())
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, fiber.StatusBadGateway, gqlErr.Status)

	// 錯的 token
	_, err = NewGraphQLUserRepository(newTestClient(url, "other")).Me(context.Background())
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, fiber.StatusUnauthorized, gqlErr.Status)

	// 沒有 token 不送出
	_, err = NewGraphQLUserRepository(newTestClient(url, "")).Me(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoToken)
}

// 測試 sendMessage / me
func TestGraphQLRepositories_SendAndMe(t *testing.T) {
	url := startGraphQLServer(t, func(c *fiber.Ctx, req domain.GraphQLRequest) error {
		switch req.OperationName {
		case "SendMessage":
			return c.JSON(fiber.Map{"data": fiber.Map{"sendMessage": fiber.Map{
				"id": "m9", "content": req.Variables["content"], "insertedAt": "2024-01-01T00:00:09Z",
				"user": fiber.Map{"id": "u1", "username": "alice"},
			}}})
		case "Me":
			return c.JSON(fiber.Map{"data": fiber.Map{"me": fiber.Map{"id": "u1", "username": "alice", "firstName": "Alice"}}})
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"sendMessage": nil}})
	})
	client := newTestClient(url, "tok")

	m, err := NewGraphQLMessageRepository(client).SendMessage(context.Background(), "r1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m9", m.ID)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "r1", m.RoomID)

	me, err := NewGraphQLUserRepository(client).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", me.ID)
	assert.Equal(t, "Alice", me.ToAuthor().DisplayName())
}

// 測試 ctx 取消
func TestGraphQLClient_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	url := startGraphQLServer(t, func(c *fiber.Ctx, req domain.GraphQLRequest) error {
		<-release
		return c.JSON(fiber.Map{"data": fiber.Map{}})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := newTestClient(url, "tok").Do(ctx, domain.GraphQLRequest{Query: domain.MeQuery, OperationName: "Me"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
