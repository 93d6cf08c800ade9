package repository

import (
	"context"
	"net"
	"net/url"
	"time"

	"realtime_chat_client/pkg/logger"

	"go.uber.org/zap"
)

// NetworkProbe poll tcp reachability of the socket host, report transitions only
type NetworkProbe struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewNetworkProbe endpoint is the socket url
func NewNetworkProbe(endpoint string, interval, timeout time.Duration) (*NetworkProbe, error) {
	addr, err := hostPort(endpoint)
	if err != nil {
		return nil, err
	}
	d := &net.Dialer{Timeout: timeout}
	return &NetworkProbe{addr: addr, interval: interval, timeout: timeout, dial: d.DialContext}, nil
}

// Check one probe
func (p *NetworkProbe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Run call onChange(online) on every transition until ctx done. first result is always reported
func (p *NetworkProbe) Run(ctx context.Context, onChange func(online bool)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	known, last := false, false
	for {
		online := p.Check(ctx)
		if !known || online != last {
			logger.Log.Debug("network transition", zap.String("addr", p.addr), zap.Bool("online", online))
			known, last = true, online
			onChange(online)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func hostPort(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "wss" || u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
