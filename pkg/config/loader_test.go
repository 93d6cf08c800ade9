package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
endpoint:
  graphql: ${TEST_CHAT_GRAPHQL_URL}
  socket: ws://localhost:4000/socket/websocket
reconnect:
  base_delay: 2s
  max_attempts: 3
messages:
  page_size: 20
inspect:
  enabled: true
  token: ${TEST_INSPECT_TOKEN}
`

// 測試 yaml + ${} 環境變數
func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_test.yaml"), []byte(testYAML), 0o644))
	t.Setenv("TEST_CHAT_GRAPHQL_URL", "http://localhost:4000/api/graphql")
	t.Setenv("TEST_INSPECT_TOKEN", "s3cret")

	cfg, err := ReadConfig[Client]("chat_test", dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/api/graphql", cfg.Endpoint.GraphQL)
	assert.Equal(t, "ws://localhost:4000/socket/websocket", cfg.Endpoint.Socket)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 20, cfg.Messages.PageSize)
	assert.True(t, cfg.Inspect.Enabled)
	assert.Equal(t, "s3cret", cfg.Inspect.Token)

	cfg.Defaults()
	assert.Equal(t, 2*time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Channel.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, cfg.Typing.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Presence.Debounce)
	assert.Equal(t, "env", cfg.Auth.TokenSource)
	assert.Equal(t, "standalone", cfg.Redis.Mode)
	assert.Equal(t, "7070", cfg.Inspect.Port)

	_, err = ReadConfig[Client]("missing", dir)
	assert.Error(t, err)
}

// 測試 往上層找檔案
func TestGetPath(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), nil, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	path, err := GetPath("marker.txt", 5)
	require.NoError(t, err)
	assert.Equal(t, "../../marker.txt", path)

	_, err = GetPath("nope.txt", 2)
	assert.Error(t, err)
}

// 測試 sentinel 位址從環境變數組出來
func TestGetRedisSetting(t *testing.T) {
	t.Setenv("REDIS_MASTER_NAME", "chatmaster")
	t.Setenv("REDIS_SENTINEL1_IP", "10.0.0.1")
	t.Setenv("REDIS_SENTINEL1_PORT", "26379")
	t.Setenv("REDIS_SENTINEL2_IP", "10.0.0.2")

	master, addrs := GetRedisSetting()
	assert.Equal(t, "chatmaster", master)
	assert.Contains(t, addrs, "10.0.0.1:26379")
	assert.NotContains(t, addrs, "10.0.0.2:")
}
