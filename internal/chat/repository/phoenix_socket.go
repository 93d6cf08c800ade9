package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"realtime_chat_client/internal/chat/domain"

	"github.com/gorilla/websocket"
)

// SocketConn one open Phoenix socket
type SocketConn interface {
	// ReadFrame block until next frame, error when the socket is gone
	ReadFrame() (domain.Frame, error)
	WriteFrame(f domain.Frame) error
	Close() error
}

// SocketDialer definition open a socket with a token
type SocketDialer interface {
	Dial(ctx context.Context, endpoint, token string) (SocketConn, error)
}

// PhoenixDialer gorilla websocket dialer, vsn 2.0.0 json serializer
type PhoenixDialer struct {
	dialer      *websocket.Dialer
	dialTimeout time.Duration
}

// NewPhoenixDialer create PhoenixDialer
func NewPhoenixDialer(dialTimeout time.Duration) *PhoenixDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = dialTimeout
	return &PhoenixDialer{dialer: &d, dialTimeout: dialTimeout}
}

// SocketURL <endpoint>/websocket?token=..&vsn=2.0.0
func SocketURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse socket endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	query := u.Query()
	query.Set("token", token)
	query.Set("vsn", "2.0.0")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Dial open the socket
func (d *PhoenixDialer) Dial(ctx context.Context, endpoint, token string) (SocketConn, error) {
	wsURL, err := SocketURL(endpoint, token)
	if err != nil {
		return nil, err
	}

	if d.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.dialTimeout)
		defer cancel()
	}

	conn, _, err := d.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &phoenixConn{conn: conn}, nil
}

// phoenixConn gorilla 只允許一個 writer, 寫入加鎖
type phoenixConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// ReadFrame 壞掉的 frame 回傳 domain.ErrMalformedPayload, socket 仍可用
func (c *phoenixConn) ReadFrame() (domain.Frame, error) {
	var f domain.Frame
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			return f, err
		}
		return f, domain.Malformed("frame: %v", err)
	}
	return f, nil
}

func (c *phoenixConn) WriteFrame(f domain.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(f)
}

func (c *phoenixConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
