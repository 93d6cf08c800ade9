package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"
	"realtime_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// ReconnectPolicy exponential backoff, BaseDelay * 2^attempt
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// Delay backoff for attempt (from 0)
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// ConnectionManager 單一 socket 連線, 斷線重連
type ConnectionManager struct {
	mu     sync.Mutex
	emitMu sync.Mutex

	dialer    repository.SocketDialer
	endpoint  string
	clock     Clock
	policy    ReconnectPolicy
	heartbeat time.Duration

	token   string
	wanted  bool
	online  bool
	conn    repository.SocketConn
	state   domain.ConnState
	gen     uint64
	attempt int
	retry   Timer

	hbTimer   Timer
	hbPending string

	ref       atomic.Uint64
	onFrame   func(domain.Frame)
	observers []func(domain.ConnState)
}

// NewConnectionManager create ConnectionManager, state closed
func NewConnectionManager(dialer repository.SocketDialer, endpoint string, policy ReconnectPolicy, heartbeat time.Duration, clock Clock) *ConnectionManager {
	if clock == nil {
		clock = SystemClock
	}
	return &ConnectionManager{
		dialer:    dialer,
		endpoint:  endpoint,
		clock:     clock,
		policy:    policy,
		heartbeat: heartbeat,
		online:    true,
		state:     domain.ConnClosed,
	}
}

// OnFrame set the inbound frame handler (channel registry)
func (m *ConnectionManager) OnFrame(fn func(domain.Frame)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// OnStateChange observers run in state order; they must not call Connect / Disconnect synchronously
func (m *ConnectionManager) OnStateChange(fn func(domain.ConnState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// State current state
func (m *ConnectionManager) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected state == open
func (m *ConnectionManager) Connected() bool {
	return m.State() == domain.ConnOpen
}

// Attempt reconnect attempts since the last success
func (m *ConnectionManager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// NextRef unique message ref
func (m *ConnectionManager) NextRef() string {
	return domain.FormatRef(m.ref.Add(1))
}

// Connect idempotent, no-op while connecting / open.
// dial errors are not returned, they drive the backoff and show up as state
func (m *ConnectionManager) Connect(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrNoToken
	}

	m.mu.Lock()
	m.token = token
	m.wanted = true
	if m.state == domain.ConnConnecting || m.state == domain.ConnOpen {
		m.mu.Unlock()
		return nil
	}
	m.attempt = 0
	m.stopRetryLocked()
	gen := m.beginDialLocked()
	m.emitUnlock(domain.ConnConnecting)

	m.dial(ctx, gen)
	return nil
}

// Disconnect close the socket, cancel retries, state closed
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	m.wanted = false
	m.teardownLocked()
	changed := m.setStateLocked(domain.ConnClosed)
	m.emitUnlockIf(changed, domain.ConnClosed)
}

// SetNetworkOnline network transition from the probe
func (m *ConnectionManager) SetNetworkOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	if !online {
		logger.Log.Info("network offline, closing socket")
		m.teardownLocked()
		changed := m.setStateLocked(domain.ConnClosed)
		m.emitUnlockIf(changed, domain.ConnClosed)
		return
	}

	if !m.wanted || m.token == "" || m.state == domain.ConnOpen || m.state == domain.ConnConnecting {
		m.mu.Unlock()
		return
	}
	logger.Log.Info("network online, reconnecting")
	m.attempt = 0
	m.stopRetryLocked()
	gen := m.beginDialLocked()
	m.emitUnlock(domain.ConnConnecting)

	go m.dial(context.Background(), gen)
}

// Send write a frame, ErrNotConnected unless open
func (m *ConnectionManager) Send(f domain.Frame) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if state != domain.ConnOpen || conn == nil {
		return domain.ErrNotConnected
	}
	return conn.WriteFrame(f)
}

func (m *ConnectionManager) beginDialLocked() uint64 {
	m.gen++
	m.setStateLocked(domain.ConnConnecting)
	return m.gen
}

func (m *ConnectionManager) dial(ctx context.Context, gen uint64) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, m.endpoint, token)

	m.mu.Lock()
	if gen != m.gen {
		// Disconnect / offline 之後才回來的結果
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		logger.Log.Warn("socket dial failed", zap.Int("attempt", m.attempt), zap.Error(err))
		state := m.scheduleReconnectLocked()
		m.emitUnlock(state)
		return
	}

	m.conn = conn
	m.attempt = 0
	m.hbPending = ""
	m.setStateLocked(domain.ConnOpen)
	m.armHeartbeatLocked(gen)
	go m.readLoop(gen, conn)
	logger.Log.Info("socket open", zap.String("endpoint", m.endpoint))
	m.emitUnlock(domain.ConnOpen)
}

func (m *ConnectionManager) readLoop(gen uint64, conn repository.SocketConn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedPayload) {
				logger.Log.Warn("drop malformed frame", zap.Error(err))
				metrics.Get().RecordDropped("frame")
				continue
			}
			m.handleDrop(gen, err)
			return
		}

		if f.Topic == domain.TopicPhoenix && f.Event == domain.EventReply {
			m.ackHeartbeat(f.Ref)
			continue
		}

		m.mu.Lock()
		stale := gen != m.gen
		fn := m.onFrame
		m.mu.Unlock()
		if stale {
			return
		}
		if fn != nil {
			fn(f)
		}
	}
}

func (m *ConnectionManager) handleDrop(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	logger.Log.Warn("socket dropped", zap.Error(cause))
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.stopHeartbeatLocked()
	state := m.scheduleReconnectLocked()
	m.emitUnlock(state)
}

// scheduleReconnectLocked decide the state after a failure
func (m *ConnectionManager) scheduleReconnectLocked() domain.ConnState {
	if !m.online || !m.wanted {
		m.setStateLocked(domain.ConnClosed)
		return m.state
	}
	if m.attempt >= m.policy.MaxAttempts {
		logger.Log.Error("reconnect attempts exhausted", zap.Int("attempts", m.attempt))
		m.setStateLocked(domain.ConnDisconnected)
		return m.state
	}

	delay := m.policy.Delay(m.attempt)
	m.attempt++
	gen := m.gen
	m.setStateLocked(domain.ConnReconnecting)
	m.retry = m.clock.AfterFunc(delay, func() { m.retryDial(gen) })

	metrics.Get().RecordReconnect(delay.Seconds())
	logger.Log.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", m.attempt))
	return m.state
}

func (m *ConnectionManager) retryDial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != domain.ConnReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	next := m.beginDialLocked()
	m.emitUnlock(domain.ConnConnecting)

	m.dial(context.Background(), next)
}

func (m *ConnectionManager) armHeartbeatLocked(gen uint64) {
	if m.heartbeat <= 0 {
		return
	}
	m.hbTimer = m.clock.AfterFunc(m.heartbeat, func() { m.beat(gen) })
}

func (m *ConnectionManager) beat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	if m.hbPending != "" {
		// 上一個 heartbeat 沒回, 關掉讓 readLoop 走重連
		m.mu.Unlock()
		logger.Log.Warn("heartbeat timeout, closing socket")
		_ = conn.Close()
		return
	}
	ref := m.NextRef()
	m.hbPending = ref
	m.armHeartbeatLocked(gen)
	m.mu.Unlock()

	f, _ := domain.NewFrame("", ref, domain.TopicPhoenix, domain.EventHeartbeat, nil)
	if err := conn.WriteFrame(f); err != nil {
		_ = conn.Close()
	}
}

func (m *ConnectionManager) ackHeartbeat(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref != "" && ref == m.hbPending {
		m.hbPending = ""
	}
}

// teardownLocked invalidate the current generation and close the socket
func (m *ConnectionManager) teardownLocked() {
	m.gen++
	m.stopRetryLocked()
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *ConnectionManager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *ConnectionManager) stopHeartbeatLocked() {
	if m.hbTimer != nil {
		m.hbTimer.Stop()
		m.hbTimer = nil
	}
	m.hbPending = ""
}

func (m *ConnectionManager) setStateLocked(s domain.ConnState) bool {
	if m.state == s {
		return false
	}
	m.state = s
	metrics.Get().SetConnState(string(s))
	return true
}

// emitUnlock hand over from mu to emitMu so observers see states in order
func (m *ConnectionManager) emitUnlock(s domain.ConnState) {
	observers := append([]func(domain.ConnState){}, m.observers...)
	m.emitMu.Lock()
	m.mu.Unlock()
	defer m.emitMu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

func (m *ConnectionManager) emitUnlockIf(changed bool, s domain.ConnState) {
	if !changed {
		m.mu.Unlock()
		return
	}
	m.emitUnlock(s)
}
