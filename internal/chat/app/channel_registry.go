package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"
	"realtime_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// Transport outbound side of the socket
type Transport interface {
	Send(f domain.Frame) error
	NextRef() string
	Connected() bool
}

// Binding event handler registered before phx_join goes out
type Binding struct {
	Event string
	Fn    func(payload json.RawMessage)
}

// ChannelRegistry topic -> channel, 每個 topic 同時只有一個 join.
// transport 只在 r.mu 之外呼叫 (NextRef 除外), OnConnState 會在 transport 的 emit 裡拿 r.mu
type ChannelRegistry struct {
	mu          sync.Mutex
	transport   Transport
	clock       Clock
	joinTimeout time.Duration

	channels   map[string]*channel
	nextHandle uint64
}

type channel struct {
	topic    string
	params   interface{}
	state    domain.ChannelState
	joinRef  string
	attempt  *joinAttempt
	refs     int
	handlers []handlerEntry
}

type joinAttempt struct {
	ref   string
	done  chan struct{}
	err   error
	timer Timer
}

type handlerEntry struct {
	handle uint64
	event  string
	fn     func(json.RawMessage)
}

// ChannelHandle one consumer's reference to a channel
type ChannelHandle struct {
	reg      *ChannelRegistry
	ch       *channel
	id       uint64
	released bool
}

// NewChannelRegistry create ChannelRegistry
func NewChannelRegistry(transport Transport, joinTimeout time.Duration, clock Clock) *ChannelRegistry {
	if clock == nil {
		clock = SystemClock
	}
	return &ChannelRegistry{
		transport:   transport,
		clock:       clock,
		joinTimeout: joinTimeout,
		channels:    make(map[string]*channel),
	}
}

// Join acquire a reference and wait until the topic is joined.
// a second Join for the same topic shares the in-flight join
func (r *ChannelRegistry) Join(ctx context.Context, topic string, params interface{}, bindings ...Binding) (*ChannelHandle, error) {
	connected := r.transport.Connected()

	r.mu.Lock()
	ch := r.channels[topic]
	if ch == nil {
		ch = &channel{topic: topic, params: params, state: domain.ChannelLeft}
		r.channels[topic] = ch
	}
	ch.refs++
	r.nextHandle++
	h := &ChannelHandle{reg: r, ch: ch, id: r.nextHandle}
	for _, b := range bindings {
		ch.handlers = append(ch.handlers, handlerEntry{handle: h.id, event: b.Event, fn: b.Fn})
	}

	attempt, frame, err := r.ensureJoinedLocked(ch, connected)
	r.mu.Unlock()

	if err == nil {
		err = r.await(ctx, ch, attempt, frame)
	}
	if err != nil {
		r.release(h)
		return nil, err
	}
	return h, nil
}

// Leave drop the handle; phx_leave only when the last handle goes
func (r *ChannelRegistry) Leave(h *ChannelHandle) {
	if h != nil {
		r.release(h)
	}
}

// ensureJoinedLocked returns the attempt to wait on, and a phx_join frame to send when a new attempt starts.
// connected is read before r.mu; a stale true only costs a failed Send
func (r *ChannelRegistry) ensureJoinedLocked(ch *channel, connected bool) (*joinAttempt, *domain.Frame, error) {
	switch ch.state {
	case domain.ChannelJoined:
		return nil, nil, nil
	case domain.ChannelJoining:
		return ch.attempt, nil, nil
	}

	if !connected {
		metrics.Get().RecordJoin("not_connected")
		return nil, nil, domain.ErrNotConnected
	}

	ref := r.transport.NextRef()
	frame, err := domain.NewFrame(ref, ref, ch.topic, domain.EventJoin, ch.params)
	if err != nil {
		return nil, nil, err
	}

	a := &joinAttempt{ref: ref, done: make(chan struct{})}
	topic := ch.topic
	if r.joinTimeout > 0 {
		a.timer = r.clock.AfterFunc(r.joinTimeout, func() {
			r.resolveJoin(topic, ref, domain.ErrJoinTimeout)
		})
	}
	ch.attempt = a
	ch.joinRef = ref
	ch.state = domain.ChannelJoining
	return a, &frame, nil
}

func (r *ChannelRegistry) await(ctx context.Context, ch *channel, a *joinAttempt, frame *domain.Frame) error {
	if a == nil {
		return nil
	}
	if frame != nil {
		logger.Log.Debug("phx_join", zap.String("topic", ch.topic), zap.String("ref", a.ref))
		if err := r.transport.Send(*frame); err != nil {
			r.resolveJoin(ch.topic, a.ref, err)
		}
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveJoin finish the attempt identified by (topic, ref); later results for it are ignored
func (r *ChannelRegistry) resolveJoin(topic, ref string, err error) {
	r.mu.Lock()
	ch := r.channels[topic]
	if ch == nil || ch.attempt == nil || ch.attempt.ref != ref || ch.state != domain.ChannelJoining {
		r.mu.Unlock()
		return
	}
	r.finishLocked(ch, err)
	r.mu.Unlock()
}

func (r *ChannelRegistry) finishLocked(ch *channel, err error) {
	a := ch.attempt
	if a.timer != nil {
		a.timer.Stop()
	}
	a.err = err
	if err == nil {
		ch.state = domain.ChannelJoined
		metrics.Get().RecordJoin("ok")
	} else {
		ch.state = domain.ChannelErrored
		metrics.Get().RecordJoin(joinResult(err))
		logger.Log.Warn("channel join failed", zap.String("topic", ch.topic), zap.Error(err))
	}
	close(a.done)
}

func (r *ChannelRegistry) release(h *ChannelHandle) {
	r.mu.Lock()
	if h.released {
		r.mu.Unlock()
		return
	}
	h.released = true
	ch := h.ch

	kept := ch.handlers[:0]
	for _, e := range ch.handlers {
		if e.handle != h.id {
			kept = append(kept, e)
		}
	}
	ch.handlers = kept

	ch.refs--
	if ch.refs > 0 || r.channels[ch.topic] != ch {
		r.mu.Unlock()
		return
	}

	delete(r.channels, ch.topic)
	active := ch.state == domain.ChannelJoined || ch.state == domain.ChannelJoining
	if ch.state == domain.ChannelJoining {
		r.finishLocked(ch, domain.ErrHandleReleased)
	}
	ch.state = domain.ChannelLeft
	joinRef := ch.joinRef
	r.mu.Unlock()

	if active && r.transport.Connected() {
		f, _ := domain.NewFrame(joinRef, r.transport.NextRef(), ch.topic, domain.EventLeave, nil)
		if err := r.transport.Send(f); err != nil {
			logger.Log.Debug("phx_leave not sent", zap.String("topic", ch.topic), zap.Error(err))
		}
	}
}

// HandleFrame route one inbound frame
func (r *ChannelRegistry) HandleFrame(f domain.Frame) {
	if f.Event == domain.EventReply {
		r.handleReply(f)
		return
	}

	r.mu.Lock()
	ch := r.channels[f.Topic]
	if ch == nil {
		r.mu.Unlock()
		logger.Log.Debug("frame for unknown topic", zap.String("topic", f.Topic), zap.String("event", f.Event))
		return
	}

	if f.Event == domain.EventError || f.Event == domain.EventClose {
		if f.JoinRef == "" || f.JoinRef == ch.joinRef {
			switch ch.state {
			case domain.ChannelJoining:
				r.finishLocked(ch, &domain.JoinError{Topic: ch.topic, Reason: f.Event})
			case domain.ChannelJoined:
				ch.state = domain.ChannelErrored
				logger.Log.Warn("channel errored", zap.String("topic", ch.topic), zap.String("event", f.Event))
			}
		}
		r.mu.Unlock()
		return
	}

	if ch.state != domain.ChannelJoined || (f.JoinRef != "" && f.JoinRef != ch.joinRef) {
		r.mu.Unlock()
		logger.Log.Debug("drop frame for inactive channel", zap.String("topic", f.Topic), zap.String("event", f.Event))
		return
	}

	var fns []func(json.RawMessage)
	for _, e := range ch.handlers {
		if e.event == f.Event {
			fns = append(fns, e.fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(f.Payload)
	}
}

func (r *ChannelRegistry) handleReply(f domain.Frame) {
	var reply domain.Reply
	if err := json.Unmarshal(f.Payload, &reply); err != nil {
		logger.Log.Warn("drop malformed phx_reply", zap.String("topic", f.Topic), zap.Error(err))
		metrics.Get().RecordDropped(domain.EventReply)
		return
	}

	var err error
	if reply.Status != domain.ReplyOK {
		err = &domain.JoinError{Topic: f.Topic, Reason: reply.Reason()}
	}
	r.resolveJoin(f.Topic, f.Ref, err)
}

// OnConnState every channel is unusable once the socket leaves open
func (r *ChannelRegistry) OnConnState(state domain.ConnState) {
	if state == domain.ConnOpen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		switch ch.state {
		case domain.ChannelJoining:
			r.finishLocked(ch, domain.ErrNotConnected)
		case domain.ChannelJoined:
			ch.state = domain.ChannelErrored
		}
	}
}

// Topics currently tracked with their state
func (r *ChannelRegistry) Topics() map[string]domain.ChannelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.ChannelState, len(r.channels))
	for topic, ch := range r.channels {
		out[topic] = ch.state
	}
	return out
}

// Topic name
func (h *ChannelHandle) Topic() string {
	return h.ch.topic
}

// State join state of the underlying channel, left once this handle is released
func (h *ChannelHandle) State() domain.ChannelState {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.released {
		return domain.ChannelLeft
	}
	return h.ch.state
}

// On add a handler owned by this handle
func (h *ChannelHandle) On(event string, fn func(json.RawMessage)) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.released {
		return
	}
	h.ch.handlers = append(h.ch.handlers, handlerEntry{handle: h.id, event: event, fn: fn})
}

// Push client event on a joined channel
func (h *ChannelHandle) Push(event string, payload interface{}) error {
	h.reg.mu.Lock()
	if h.released {
		h.reg.mu.Unlock()
		return domain.ErrHandleReleased
	}
	if h.ch.state != domain.ChannelJoined {
		h.reg.mu.Unlock()
		return domain.ErrChannelNotJoined
	}
	joinRef := h.ch.joinRef
	h.reg.mu.Unlock()

	f, err := domain.NewFrame(joinRef, h.reg.transport.NextRef(), h.ch.topic, event, payload)
	if err != nil {
		return err
	}
	return h.reg.transport.Send(f)
}

// Rejoin join again after errored, shares an in-flight join, no new reference
func (h *ChannelHandle) Rejoin(ctx context.Context) error {
	r := h.reg
	connected := r.transport.Connected()

	r.mu.Lock()
	if h.released {
		r.mu.Unlock()
		return domain.ErrHandleReleased
	}
	attempt, frame, err := r.ensureJoinedLocked(h.ch, connected)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.await(ctx, h.ch, attempt, frame)
}

func joinResult(err error) string {
	switch err {
	case domain.ErrJoinTimeout:
		return "timeout"
	case domain.ErrNotConnected:
		return "not_connected"
	case domain.ErrHandleReleased:
		return "released"
	}
	return "error"
}
