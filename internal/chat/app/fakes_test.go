package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"
)

func init() {
	logger.SetNewNop()
}

var errDial = errors.New("dial refused")

// fakeClock 手動推進的時鐘, Advance 依到期順序同步執行 timer
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance move time forward, timers scheduled while firing also run if due
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// Delays every duration passed to AfterFunc
func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Active timers not yet fired or stopped
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeConn in-memory socket
type fakeConn struct {
	in        chan domain.Frame
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []domain.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan domain.Frame, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadFrame() (domain.Frame, error) {
	select {
	case <-c.closed:
		return domain.Frame{}, io.EOF
	case f := <-c.in:
		return f, nil
	}
}

func (c *fakeConn) WriteFrame(f domain.Frame) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, f)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Written(event string) []domain.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Frame
	for _, f := range c.written {
		if event == "" || f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// fakeDialer failures < 0 always fails, otherwise the next failures dials fail
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	tokens   []string
	conns    []*fakeConn

	// block 非 nil 時 Dial 會先送 started 再等 block
	started chan struct{}
	block   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint, token string) (repository.SocketConn, error) {
	d.mu.Lock()
	d.dials++
	d.tokens = append(d.tokens, token)
	block, started := d.block, d.started
	fail := d.failures != 0
	if d.failures > 0 {
		d.failures--
	}
	d.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-block
	}
	if fail {
		return nil, errDial
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) setFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeTransport registry side of the socket
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	ref       int
	sent      []domain.Frame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true}
}

func (t *fakeTransport) Send(f domain.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return domain.ErrNotConnected
	}
	t.sent = append(t.sent, f)
	return nil
}

func (t *fakeTransport) NextRef() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ref++
	return domain.FormatRef(uint64(t.ref))
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) setConnected(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = v
}

func (t *fakeTransport) Sent(event string) []domain.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Frame
	for _, f := range t.sent {
		if event == "" || f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// waitSent 等第 n 個 event frame 出現 (從 1 開始)
func (t *fakeTransport) waitSent(tb testing.TB, event string, n int) domain.Frame {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := t.Sent(event); len(frames) >= n {
			return frames[n-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("no %d %s frame sent", n, event)
	return domain.Frame{}
}

func replyFrame(topic, ref, status string, response string) domain.Frame {
	if response == "" {
		response = "{}"
	}
	return domain.Frame{
		JoinRef: ref,
		Ref:     ref,
		Topic:   topic,
		Event:   domain.EventReply,
		Payload: []byte(`{"status":"` + status + `","response":` + response + `}`),
	}
}

func msgAt(id, roomID string, sec int) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		Author:    domain.Author{ID: "u-" + id, Username: "user" + id},
		Content:   "content " + id,
		Timestamp: time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC),
	}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
