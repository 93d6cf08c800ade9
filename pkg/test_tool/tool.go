package testtool

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"realtime_chat_client/internal/chat/domain"

	"github.com/docker/go-connections/nat"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/testcontainers/testcontainers-go"
)

// SetupContainer 通用函式來啟動測試容器
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}

	// 轉換 ExposedPorts[0] 為 nat.Port
	natPort, err := nat.NewPort("tcp", req.ExposedPorts[0][:len(req.ExposedPorts[0])-4]) // 去掉 "/tcp"
	if err != nil {
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}

// JoinReplyFunc decide phx_reply for a phx_join, default ok
type JoinReplyFunc func(topic string, params json.RawMessage) (status string, response interface{})

// MockPhoenixServer fiber websocket server speaking Phoenix v2 json frames
type MockPhoenixServer struct {
	app *fiber.App
	ln  net.Listener

	// URL ws://127.0.0.1:port/socket/websocket
	URL string
	// Received every client frame except heartbeat
	Received chan domain.Frame
	// Tokens token query of every accepted socket
	Tokens chan string

	mu        sync.Mutex
	conns     map[*websocket.Conn]*mockConn
	joinReply JoinReplyFunc
}

type mockConn struct {
	wmu      sync.Mutex
	joinRefs map[string]string
}

// StartMockPhoenixServer 隨機 port 啟動
func StartMockPhoenixServer(reply JoinReplyFunc) (*MockPhoenixServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0") // 隨機取得可用 Port
	if err != nil {
		return nil, fmt.Errorf("mock phoenix listen: %w", err)
	}

	s := &MockPhoenixServer{
		app:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		ln:        ln,
		URL:       fmt.Sprintf("ws://%s/socket/websocket", ln.Addr().String()),
		Received:  make(chan domain.Frame, 256),
		Tokens:    make(chan string, 16),
		conns:     make(map[*websocket.Conn]*mockConn),
		joinReply: reply,
	}

	s.app.Use("/socket", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("token", c.Query("token"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/socket/websocket", websocket.New(s.handle))

	go func() {
		_ = s.app.Listener(ln)
	}()
	return s, nil
}

func (s *MockPhoenixServer) handle(c *websocket.Conn) {
	mc := &mockConn{joinRefs: make(map[string]string)}
	s.mu.Lock()
	s.conns[c] = mc
	s.mu.Unlock()

	if token, ok := c.Locals("token").(string); ok {
		select {
		case s.Tokens <- token:
		default:
		}
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var f domain.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}

		switch f.Event {
		case domain.EventHeartbeat:
			s.reply(c, mc, f, domain.ReplyOK, struct{}{})
			continue
		case domain.EventJoin:
			status, response := domain.ReplyOK, interface{}(struct{}{})
			if s.joinReply != nil {
				status, response = s.joinReply(f.Topic, f.Payload)
			}
			if status == domain.ReplyOK {
				s.mu.Lock()
				mc.joinRefs[f.Topic] = f.JoinRef
				s.mu.Unlock()
			}
			if status != "" {
				s.reply(c, mc, f, status, response)
			}
		case domain.EventLeave:
			s.mu.Lock()
			delete(mc.joinRefs, f.Topic)
			s.mu.Unlock()
			s.reply(c, mc, f, domain.ReplyOK, struct{}{})
		}

		select {
		case s.Received <- f:
		default:
		}
	}
}

func (s *MockPhoenixServer) reply(c *websocket.Conn, mc *mockConn, f domain.Frame, status string, response interface{}) {
	out, err := domain.NewFrame(f.JoinRef, f.Ref, f.Topic, domain.EventReply, map[string]interface{}{
		"status":   status,
		"response": response,
	})
	if err != nil {
		return
	}
	s.write(c, mc, out)
}

func (s *MockPhoenixServer) write(c *websocket.Conn, mc *mockConn, f domain.Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	mc.wmu.Lock()
	defer mc.wmu.Unlock()
	_ = c.WriteMessage(websocket.TextMessage, b)
}

// Broadcast push event to every socket joined to topic, returns how many got it
func (s *MockPhoenixServer) Broadcast(topic, event string, payload interface{}) int {
	s.mu.Lock()
	type target struct {
		c       *websocket.Conn
		mc      *mockConn
		joinRef string
	}
	var targets []target
	for c, mc := range s.conns {
		if ref, ok := mc.joinRefs[topic]; ok {
			targets = append(targets, target{c: c, mc: mc, joinRef: ref})
		}
	}
	s.mu.Unlock()

	for _, t := range targets {
		f, err := domain.NewFrame(t.joinRef, "", topic, event, payload)
		if err != nil {
			return 0
		}
		s.write(t.c, t.mc, f)
	}
	return len(targets)
}

// Joined topic joined on any socket
func (s *MockPhoenixServer) Joined(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mc := range s.conns {
		if _, ok := mc.joinRefs[topic]; ok {
			return true
		}
	}
	return false
}

// DropAll close every socket from the server side
func (s *MockPhoenixServer) DropAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Close stop server
func (s *MockPhoenixServer) Close() error {
	s.DropAll()
	return s.app.Shutdown()
}
