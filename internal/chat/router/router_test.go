package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"realtime_chat_client/internal/chat/app"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(inspectToken string) *fiber.App {
	logger.SetNewNop()

	tokens := repository.NewStaticTokenStore("")
	gql := repository.NewGraphQLClient("http://127.0.0.1:1/graphql", tokens, time.Second)
	conn := app.NewConnectionManager(repository.NewPhoenixDialer(time.Second), "ws://127.0.0.1:1/socket/websocket",
		app.ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 1}, 0, app.SystemClock)
	client := app.NewSyncClient(app.SyncConfig{PageSize: 20}, conn, tokens,
		repository.NewGraphQLUserRepository(gql), repository.NewGraphQLMessageRepository(gql),
		app.NewPresenceTracker(0, app.SystemClock), app.SystemClock)

	r := fiber.New()
	RegisterRoutes(r, app.NewInspectHandler(client), inspectToken)
	return r
}

func get(t *testing.T, r *fiber.App, path string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := r.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// 測試 /metrics 不需要 token, 其他路由需要
func TestRegisterRoutes(t *testing.T) {
	r := newTestApp("secret")

	code, body := get(t, r, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")

	code, _ = get(t, r, "/status", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = get(t, r, "/status", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"state":"closed"`)

	code, _ = get(t, r, "/presence?auth=secret", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, r, "/chats?auth=secret", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"loaded":false`)
}
