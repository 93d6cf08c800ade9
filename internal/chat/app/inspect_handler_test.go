package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type inspectFixture struct {
	app      *fiber.App
	client   *SyncClient
	messages *MockMessageRepository
	tokens   *MockTokenStore
	chats    *MockChatRepository
}

func newInspectFixture() *inspectFixture {
	f := &inspectFixture{messages: new(MockMessageRepository), tokens: new(MockTokenStore), chats: new(MockChatRepository)}
	clock := newFakeClock()
	conn := NewConnectionManager(&fakeDialer{failures: -1}, "ws://chat.test/socket/websocket",
		ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 1}, 0, clock)
	f.client = NewSyncClient(SyncConfig{PageSize: 2, TypingTimeout: 3 * time.Second, TypingSweep: time.Second, TypingIdle: 3 * time.Second},
		conn, f.tokens, new(MockUserRepository), f.messages, NewPresenceTracker(0, clock), clock)
	f.client.SetChatRepository(f.chats)

	h := NewInspectHandler(f.client)
	f.app = fiber.New()
	f.app.Get("/status", h.Status)
	f.app.Post("/reconnect", h.Reconnect)
	f.app.Post("/debug", h.Debug)
	f.app.Get("/chats", h.Chats)
	f.app.Post("/rooms/:id", h.OpenRoom)
	f.app.Delete("/rooms/:id", h.CloseRoom)
	f.app.Get("/rooms/:id/messages", h.Messages)
	f.app.Post("/rooms/:id/messages", h.SendMessage)
	f.app.Post("/rooms/:id/older", h.LoadOlder)
	f.app.Post("/rooms/:id/retry", h.Retry)
	f.app.Get("/rooms/:id/typing", h.Typing)
	f.app.Get("/presence", h.Presence)
	f.app.Get("/presence/:userId", h.PresenceUser)
	return f
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// 測試 GET /chats, refresh 重新查詢, 查詢失敗回 502
func TestInspectHandler_Chats(t *testing.T) {
	f := newInspectFixture()
	name := "general"
	f.chats.On("UserChats", mock.Anything).Return([]domain.Chat{
		{ID: "c1", Name: &name},
		{ID: "d1", Members: []domain.UserNode{{ID: "u2", Username: "bob"}}},
	}, nil).Once()
	f.chats.On("UserChats", mock.Anything).Return(nil, &domain.GraphQLError{Messages: []string{"unauthorized"}}).Once()

	var v ChatListView
	code := doJSON(t, f.app, http.MethodGet, "/chats", "", &v)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, v.Loaded)
	assert.Empty(t, v.Groups)

	code = doJSON(t, f.app, http.MethodGet, "/chats?refresh=true", "", &v)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, v.Loaded)
	require.Len(t, v.Groups, 1)
	assert.Equal(t, "general", v.Groups[0].DisplayName)
	require.Len(t, v.Direct, 1)
	assert.Equal(t, "bob", v.Direct[0].DisplayName)

	var body map[string]string
	code = doJSON(t, f.app, http.MethodGet, "/chats?refresh=true", "", &body)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "unauthorized")

	// 舊清單還在
	code = doJSON(t, f.app, http.MethodGet, "/chats", "", &v)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, v.Groups, 1)
	f.chats.AssertExpectations(t)
}

// 測試 GET /status
func TestInspectHandler_Status(t *testing.T) {
	f := newInspectFixture()

	var st Status
	code := doJSON(t, f.app, http.MethodGet, "/status", "", &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.ConnClosed, st.State)
	assert.False(t, st.Connected)
	assert.NotEmpty(t, st.SessionID)
}

// 測試 POST /reconnect 沒有 token
func TestInspectHandler_ReconnectNoToken(t *testing.T) {
	f := newInspectFixture()
	f.tokens.On("GetToken", mock.Anything).Return("", domain.ErrNoToken)

	var body map[string]string
	code := doJSON(t, f.app, http.MethodPost, "/reconnect", "", &body)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, body["error"])
}

// 測試 未連線開房間回 503
func TestInspectHandler_OpenRoomNotConnected(t *testing.T) {
	f := newInspectFixture()

	var body map[string]string
	code := doJSON(t, f.app, http.MethodPost, "/rooms/r1", "", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Nil(t, f.client.Room("r1"))
}

// 測試 房間視窗 / retry / older
func TestInspectHandler_Window(t *testing.T) {
	f := newInspectFixture()
	ctx := context.Background()
	m1 := msgAt("m1", "r1", 10)

	f.messages.On("FetchLatest", mock.Anything, "r1", 2).Return(nil, errors.New("boom")).Once()
	f.messages.On("FetchLatest", mock.Anything, "r1", 2).Return([]domain.Message{m1, msgAt("m2", "r1", 11)}, nil).Once()

	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodGet, "/rooms/r1/messages", "", nil))

	require.Error(t, f.client.Buffer.LoadInitial(ctx, "r1", 2))
	var w domain.RoomWindow
	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodGet, "/rooms/r1/messages", "", &w))
	assert.NotEmpty(t, w.Error)

	w = domain.RoomWindow{}
	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodPost, "/rooms/r1/retry", "", &w))
	assert.Empty(t, w.Error)
	assert.Equal(t, []string{"m1", "m2"}, ids(w.Messages))

	// 沒有 RoomSession 的房間不能 backfill
	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodPost, "/rooms/r1/older", "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodGet, "/rooms/r1/typing", "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodPost, "/rooms/r9/retry", "", nil))

	assert.Equal(t, http.StatusNoContent, doJSON(t, f.app, http.MethodDelete, "/rooms/r1", "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodGet, "/rooms/r1/messages", "", nil))
}

// 測試 POST /rooms/:id/messages
func TestInspectHandler_SendMessage(t *testing.T) {
	f := newInspectFixture()
	sent := msgAt("m3", "r1", 30)
	f.messages.On("SendMessage", mock.Anything, "r1", "hello").Return(sent, nil)
	f.messages.On("SendMessage", mock.Anything, "r1", "fail").Return(domain.Message{}, &domain.GraphQLError{Status: 500})

	var msg domain.Message
	assert.Equal(t, http.StatusCreated, doJSON(t, f.app, http.MethodPost, "/rooms/r1/messages", `{"content":"hello"}`, &msg))
	assert.Equal(t, "m3", msg.ID)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, f.app, http.MethodPost, "/rooms/r1/messages", `{}`, nil))
	assert.Equal(t, http.StatusInternalServerError, doJSON(t, f.app, http.MethodPost, "/rooms/r1/messages", `{"content":"fail"}`, nil))
}

// 測試 presence 查詢
func TestInspectHandler_Presence(t *testing.T) {
	f := newInspectFixture()
	f.client.Presence.Apply(domain.Snapshot(
		domain.PresenceEntry{UserID: "A", Username: "a", Status: domain.StatusOnline},
		domain.PresenceEntry{UserID: "B", Username: "b", Status: domain.StatusAway},
	))

	var online []domain.PresenceEntry
	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodGet, "/presence", "", &online))
	require.Len(t, online, 1)
	assert.Equal(t, "A", online[0].UserID)

	var all []domain.PresenceEntry
	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodGet, "/presence?all=true", "", &all))
	assert.Len(t, all, 2)

	var one struct {
		Online bool                 `json:"online"`
		Entry  domain.PresenceEntry `json:"entry"`
	}
	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodGet, "/presence/B", "", &one))
	assert.False(t, one.Online)
	assert.Equal(t, domain.StatusAway, one.Entry.Status)

	assert.Equal(t, http.StatusNotFound, doJSON(t, f.app, http.MethodGet, "/presence/Z", "", nil))
}

// 測試 POST /debug
func TestInspectHandler_Debug(t *testing.T) {
	f := newInspectFixture()
	defer logger.Log.SetDebugMode(false)

	assert.Equal(t, http.StatusOK, doJSON(t, f.app, http.MethodPost, "/debug?status=true", "", nil))
	assert.True(t, logger.Log.DebugMode())
	assert.Equal(t, http.StatusBadRequest, doJSON(t, f.app, http.MethodPost, "/debug?status=maybe", "", nil))
}
