package repository

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 測試 host:port 推導
func TestHostPort(t *testing.T) {
	cases := map[string]string{
		"ws://chat.local/socket":        "chat.local:80",
		"wss://chat.local/socket":       "chat.local:443",
		"ws://127.0.0.1:4000/socket":    "127.0.0.1:4000",
		"https://chat.local/socket/abc": "chat.local:443",
	}
	for endpoint, want := range cases {
		got, err := hostPort(endpoint)
		require.NoError(t, err)
		assert.Equal(t, want, got, endpoint)
	}
}

// 測試 只在狀態轉換時通知
func TestNetworkProbe_Transitions(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	probe, err := NewNetworkProbe("ws://"+ln.Addr().String()+"/socket/websocket", 10*time.Millisecond, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, probe.Check(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan bool, 8)
	go probe.Run(ctx, func(online bool) { changes <- online })

	select {
	case online := <-changes:
		assert.True(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial report")
	}

	_ = ln.Close()
	select {
	case online := <-changes:
		assert.False(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("offline transition not reported")
	}

	// 沒有變化不再通知
	select {
	case online := <-changes:
		t.Fatalf("unexpected report %v", online)
	case <-time.After(100 * time.Millisecond):
	}
}
