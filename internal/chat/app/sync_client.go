package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"
	"realtime_chat_client/pkg/metrics"
	"realtime_chat_client/pkg/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncConfig timings of the per-room pieces
type SyncConfig struct {
	PageSize      int
	TypingTimeout time.Duration
	TypingSweep   time.Duration
	TypingIdle    time.Duration
	JoinTimeout   time.Duration
}

// SyncClient 一個登入使用者的同步層
type SyncClient struct {
	cfg   SyncConfig
	clock Clock

	tokens   repository.TokenStore
	users    repository.UserRepository
	messages repository.MessageRepository

	Conn     *ConnectionManager
	Registry *ChannelRegistry
	Buffer   *MessageBuffer
	Presence *PresenceTracker
	Chats    *ChatList

	publisher repository.ViewPublisher
	sessionID string

	mu      sync.Mutex
	joinMu  sync.Mutex
	userID  string
	started bool
	owned   map[string]*ownedChannel
	rooms   map[string]*RoomSession
}

type ownedChannel struct {
	topic    string
	bindings []Binding
	handle   *ChannelHandle
}

// Status connection view
type Status struct {
	SessionID string                         `json:"session_id"`
	UserID    string                         `json:"user_id"`
	State     domain.ConnState               `json:"state"`
	Connected bool                           `json:"connected"`
	Attempt   int                            `json:"attempt"`
	Rooms     []string                       `json:"rooms"`
	Channels  map[string]domain.ChannelState `json:"channels"`
}

// NewSyncClient wire registry / buffer / presence onto the connection
func NewSyncClient(cfg SyncConfig, conn *ConnectionManager, tokens repository.TokenStore, users repository.UserRepository,
	messages repository.MessageRepository, presence *PresenceTracker, clock Clock) *SyncClient {
	if clock == nil {
		clock = SystemClock
	}
	s := &SyncClient{
		cfg:       cfg,
		clock:     clock,
		tokens:    tokens,
		users:     users,
		messages:  messages,
		Conn:      conn,
		Registry:  NewChannelRegistry(conn, cfg.JoinTimeout, clock),
		Buffer:    NewMessageBuffer(messages),
		Presence:  presence,
		Chats:     NewChatList(nil),
		sessionID: uuid.NewString(),
		owned:     make(map[string]*ownedChannel),
		rooms:     make(map[string]*RoomSession),
	}

	conn.OnFrame(s.Registry.HandleFrame)
	conn.OnStateChange(s.Registry.OnConnState)
	conn.OnStateChange(s.onConnState)
	s.Buffer.OnChange(s.publishRoom)
	presence.OnChange(s.publishPresence)
	s.Chats.OnChange(s.publishChats)
	return s
}

// SetChatRepository userChats source for the chat list
func (s *SyncClient) SetChatRepository(repo repository.ChatRepository) {
	s.Chats.SetRepository(repo)
}

// SetPublisher publish view changes (redis)
func (s *SyncClient) SetPublisher(p repository.ViewPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Start token -> user id -> connect -> join presence:global and messages:<userId>
func (s *SyncClient) Start(ctx context.Context) error {
	tok, err := s.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	userID, err := token.UserIDFromToken(tok)
	if err != nil {
		logger.Log.Debug("user id not in token, asking graphql", zap.Error(err))
		me, meErr := s.users.Me(ctx)
		if meErr != nil {
			return fmt.Errorf("resolve user id: %w", meErr)
		}
		userID = me.ID
	}
	if ok, err := token.CheckJWTNotExpire(tok, s.clock.Now()); err == nil && !ok {
		logger.Log.Warn("auth token looks expired, server may reject the socket")
	}

	s.mu.Lock()
	s.userID = userID
	s.started = true
	s.owned[domain.PresenceTopic] = &ownedChannel{topic: domain.PresenceTopic, bindings: s.presenceBindings()}
	messagesTopic := domain.MessagesTopic(userID)
	s.owned[messagesTopic] = &ownedChannel{topic: messagesTopic, bindings: s.messageBindings()}
	s.mu.Unlock()

	logger.Log.Info("sync client start", zap.String("user_id", userID), zap.String("session_id", s.sessionID))
	if err := s.Conn.Connect(ctx, tok); err != nil {
		return err
	}
	if !s.Conn.Connected() {
		// 連上之後 onConnState 會 join
		return nil
	}
	if err := s.joinOwned(ctx); err != nil {
		return err
	}
	// 清單失敗只記在 view 上
	_ = s.Chats.Load(ctx)
	return nil
}

// Reconnect explicit connect with a fresh token, resets the backoff
func (s *SyncClient) Reconnect(ctx context.Context) error {
	tok, err := s.tokens.GetToken(ctx)
	if err != nil {
		return err
	}
	return s.Conn.Connect(ctx, tok)
}

// UserID signed-in user
func (s *SyncClient) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// OpenRoom join typing:<roomId> and load the first page. join errors are returned,
// fetch errors stay in the room window
func (s *SyncClient) OpenRoom(ctx context.Context, roomID string) (*RoomSession, error) {
	s.mu.Lock()
	if rs, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return rs, nil
	}
	rs := &RoomSession{
		RoomID:   roomID,
		Typing:   NewTypingAggregator(s.userID, s.cfg.TypingTimeout, s.clock),
		Backfill: NewBackfillTrigger(s.Buffer, roomID),
	}
	topic := domain.TypingTopic(roomID)
	rs.Sender = NewTypingSender(func(event string, payload interface{}) error {
		return s.push(topic, event, payload)
	}, s.cfg.TypingIdle, s.clock)
	rs.Typing.OnChange(func(text string) { s.publish(domain.RoomViewChannel(roomID), domain.ViewTyping, roomID, text) })

	s.rooms[roomID] = rs
	s.owned[topic] = &ownedChannel{topic: topic, bindings: rs.bindings()}
	s.mu.Unlock()

	if err := s.joinOwned(ctx, topic); err != nil {
		s.forgetRoomIf(roomID, rs)
		return nil, err
	}

	// CloseRoom 可能在等 join reply 時跑完
	s.mu.Lock()
	if s.rooms[roomID] != rs {
		s.mu.Unlock()
		return nil, domain.ErrRoomNotOpen
	}
	sweepCtx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	go rs.Typing.Run(sweepCtx, s.cfg.TypingSweep)
	s.mu.Unlock()

	if err := s.Buffer.LoadInitial(ctx, roomID, s.cfg.PageSize); err != nil {
		logger.Log.Warn("initial page failed", zap.String("room_id", roomID), zap.Error(err))
	}

	// 關掉的房間不留視窗, LoadInitial 可能在 CloseRoom 的 Drop 之後才建立
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[roomID] == nil {
		s.Buffer.Drop(roomID)
	}
	if s.rooms[roomID] != rs {
		return nil, domain.ErrRoomNotOpen
	}
	return rs, nil
}

// Room open session or nil
func (s *SyncClient) Room(roomID string) *RoomSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// CloseRoom leave typing channel, stop timers, drop the window
func (s *SyncClient) CloseRoom(roomID string) {
	if rs := s.forgetRoom(roomID); rs != nil {
		logger.Log.Info("room closed", zap.String("room_id", roomID))
	}
}

func (s *SyncClient) forgetRoom(roomID string) *RoomSession {
	return s.forgetRoomIf(roomID, nil)
}

// forgetRoomIf only when the open session is want (any session when want is nil)
func (s *SyncClient) forgetRoomIf(roomID string, want *RoomSession) *RoomSession {
	topic := domain.TypingTopic(roomID)

	s.mu.Lock()
	rs := s.rooms[roomID]
	if want != nil && rs != want {
		s.mu.Unlock()
		return nil
	}
	var h *ChannelHandle
	if oc := s.owned[topic]; oc != nil {
		h = oc.handle
	}
	delete(s.rooms, roomID)
	delete(s.owned, topic)
	s.mu.Unlock()

	if rs != nil {
		rs.close()
	}
	if h != nil {
		s.Registry.Leave(h)
	}
	s.Buffer.Drop(roomID)
	return rs
}

// SendMessage sendMessage mutation, result goes through OnLivePush so the echo dedups
func (s *SyncClient) SendMessage(ctx context.Context, roomID, content string) (domain.Message, error) {
	msg, err := s.messages.SendMessage(ctx, roomID, content)
	if err != nil {
		return domain.Message{}, err
	}
	s.Buffer.OnLivePush(msg)
	return msg, nil
}

// Stop close rooms, leave channels, disconnect
func (s *SyncClient) Stop() {
	s.mu.Lock()
	roomIDs := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		roomIDs = append(roomIDs, id)
	}
	s.started = false
	s.mu.Unlock()

	for _, id := range roomIDs {
		s.CloseRoom(id)
	}

	s.mu.Lock()
	owned := s.owned
	s.owned = make(map[string]*ownedChannel)
	s.mu.Unlock()
	for _, oc := range owned {
		if oc.handle != nil {
			s.Registry.Leave(oc.handle)
		}
	}
	s.Conn.Disconnect()
}

// Status snapshot
func (s *SyncClient) Status() Status {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	userID := s.userID
	s.mu.Unlock()
	sort.Strings(rooms)

	return Status{
		SessionID: s.sessionID,
		UserID:    userID,
		State:     s.Conn.State(),
		Connected: s.Conn.Connected(),
		Attempt:   s.Conn.Attempt(),
		Rooms:     rooms,
		Channels:  s.Registry.Topics(),
	}
}

// joinOwned join (or rejoin) owned topics, all when topics is empty. returns the first error
func (s *SyncClient) joinOwned(ctx context.Context, topics ...string) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	s.mu.Lock()
	var targets []*ownedChannel
	if len(topics) == 0 {
		for _, oc := range s.owned {
			targets = append(targets, oc)
		}
	} else {
		for _, t := range topics {
			if oc, ok := s.owned[t]; ok {
				targets = append(targets, oc)
			}
		}
	}
	s.mu.Unlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].topic < targets[j].topic })

	var firstErr error
	for _, oc := range targets {
		var err error
		if oc.handle == nil {
			var h *ChannelHandle
			h, err = s.Registry.Join(ctx, oc.topic, struct{}{}, oc.bindings...)
			if err == nil {
				s.mu.Lock()
				if s.owned[oc.topic] == oc {
					oc.handle = h
					h = nil
				}
				s.mu.Unlock()
				// 等 join 時房間已關
				if h != nil {
					s.Registry.Leave(h)
				}
			}
		} else {
			err = oc.handle.Rejoin(ctx)
		}
		if err != nil {
			logger.Log.Warn("join owned channel", zap.String("topic", oc.topic), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *SyncClient) onConnState(state domain.ConnState) {
	s.publish(domain.ConnectionViewChannel, domain.ViewConnection, "", state)

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if state != domain.ConnOpen || !started {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.rejoinTimeout())
		defer cancel()
		if err := s.joinOwned(ctx); err != nil {
			return
		}
		// 斷線期間漏掉的 chat_updated
		_ = s.Chats.Load(ctx)
	}()
}

func (s *SyncClient) rejoinTimeout() time.Duration {
	if s.cfg.JoinTimeout > 0 {
		return 2 * s.cfg.JoinTimeout
	}
	return 30 * time.Second
}

func (s *SyncClient) push(topic, event string, payload interface{}) error {
	s.mu.Lock()
	oc := s.owned[topic]
	s.mu.Unlock()
	if oc == nil || oc.handle == nil {
		return domain.ErrChannelNotJoined
	}
	return oc.handle.Push(event, payload)
}

func (s *SyncClient) presenceBindings() []Binding {
	decode := func(event string, fn func(json.RawMessage) (domain.PresenceUpdate, error)) Binding {
		return Binding{Event: event, Fn: func(payload json.RawMessage) {
			u, err := fn(payload)
			if err != nil {
				logger.Log.Warn("drop presence payload", zap.String("event", event), zap.Error(err))
				metrics.Get().RecordDropped(event)
				return
			}
			if u.Skipped > 0 {
				logger.Log.Warn("presence metas skipped", zap.String("event", event), zap.Int("skipped", u.Skipped))
				metrics.Get().RecordDropped(event)
			}
			s.Presence.Apply(u)
		}}
	}
	return []Binding{
		decode(domain.EventPresenceState, domain.DecodePresenceState),
		decode(domain.EventPresenceDiff, domain.DecodePresenceDiff),
	}
}

func (s *SyncClient) messageBindings() []Binding {
	return []Binding{
		{Event: domain.EventNewMessage, Fn: func(payload json.RawMessage) {
			msg, err := domain.DecodeNewMessage(payload)
			if err != nil {
				logger.Log.Warn("drop new_message payload", zap.Error(err))
				metrics.Get().RecordDropped(domain.EventNewMessage)
				return
			}
			s.Buffer.OnLivePush(msg)
		}},
		{Event: domain.EventChatUpdated, Fn: func(payload json.RawMessage) {
			chat, err := domain.DecodeChatUpdated(payload)
			if err != nil {
				logger.Log.Warn("drop chat_updated payload", zap.Error(err))
				metrics.Get().RecordDropped(domain.EventChatUpdated)
				return
			}
			s.Chats.Apply(chat)
		}},
	}
}

func (s *SyncClient) publishRoom(roomID string) {
	if w, ok := s.Buffer.Window(roomID); ok {
		s.publish(domain.RoomViewChannel(roomID), domain.ViewRoom, roomID, w)
	}
}

func (s *SyncClient) publishChats() {
	s.publish(domain.ChatsViewChannel, domain.ViewChats, "", s.Chats.View(s.UserID()))
}

func (s *SyncClient) publishPresence() {
	s.publish(domain.PresenceViewChannel, domain.ViewPresence, "", s.Presence.Online())
}

func (s *SyncClient) publish(channel string, kind domain.ViewKind, roomID string, payload interface{}) {
	s.mu.Lock()
	p := s.publisher
	s.mu.Unlock()
	if p == nil {
		return
	}
	ev := domain.ViewEvent{Kind: kind, RoomID: roomID, Payload: payload, Timestamp: s.clock.Now().UnixMilli()}
	if err := p.Publish(channel, ev); err != nil {
		logger.Log.Debug("publish view", zap.String("channel", channel), zap.Error(err))
	}
}
