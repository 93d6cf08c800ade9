package config

import "time"

// Client definition chat_client YAML structure
type Client struct {
	Endpoint  EndpointConfig  `mapstructure:"endpoint"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Typing    TypingConfig    `mapstructure:"typing"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Network   NetworkConfig   `mapstructure:"network"`
	Inspect   InspectConfig   `mapstructure:"inspect"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// EndpointConfig definition server endpoints
type EndpointConfig struct {
	GraphQL string `mapstructure:"graphql"`
	Socket  string `mapstructure:"socket"`
}

// ReconnectConfig definition socket backoff
type ReconnectConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ChannelConfig definition channel join / heartbeat
type ChannelConfig struct {
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// MessagesConfig definition history paging
type MessagesConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// TypingConfig definition typing indicator timing
type TypingConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	IdleStop      time.Duration `mapstructure:"idle_stop"`
}

// PresenceConfig definition presence batching
type PresenceConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// NetworkConfig definition reachability probe
type NetworkConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// InspectConfig definition local inspect api
type InspectConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Token   string `mapstructure:"token"`
}

// AuthConfig definition where the bearer token comes from ("env" or "redis")
type AuthConfig struct {
	TokenSource string `mapstructure:"token_source"`
	RedisKey    string `mapstructure:"redis_key"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Mode          string        `mapstructure:"mode"` // standalone | sentinel (REDIS_SENTINEL*_IP / _PORT)
	Addr          string        `mapstructure:"addr"`
	RedisDB       int           `mapstructure:"redis_db"`
	PublishViews  bool          `mapstructure:"publish_views"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Defaults fill zero values with the client defaults
func (c *Client) Defaults() {
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = time.Second
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Reconnect.DialTimeout <= 0 {
		c.Reconnect.DialTimeout = 10 * time.Second
	}
	if c.Channel.JoinTimeout <= 0 {
		c.Channel.JoinTimeout = 10 * time.Second
	}
	if c.Channel.HeartbeatInterval <= 0 {
		c.Channel.HeartbeatInterval = 30 * time.Second
	}
	if c.Messages.PageSize <= 0 {
		c.Messages.PageSize = 50
	}
	if c.Messages.FetchTimeout <= 0 {
		c.Messages.FetchTimeout = 15 * time.Second
	}
	if c.Typing.Timeout <= 0 {
		c.Typing.Timeout = 3 * time.Second
	}
	if c.Typing.SweepInterval <= 0 {
		c.Typing.SweepInterval = time.Second
	}
	if c.Typing.IdleStop <= 0 {
		c.Typing.IdleStop = 3 * time.Second
	}
	if c.Presence.Debounce <= 0 {
		c.Presence.Debounce = 100 * time.Millisecond
	}
	if c.Network.ProbeInterval <= 0 {
		c.Network.ProbeInterval = 5 * time.Second
	}
	if c.Network.ProbeTimeout <= 0 {
		c.Network.ProbeTimeout = 2 * time.Second
	}
	if c.Inspect.Port == "" {
		c.Inspect.Port = "7070"
	}
	if c.Auth.TokenSource == "" {
		c.Auth.TokenSource = "env"
	}
	if c.Redis.Mode == "" {
		c.Redis.Mode = "standalone"
	}
	if c.Auth.RedisKey == "" {
		c.Auth.RedisKey = "chat_client:session"
	}
}
