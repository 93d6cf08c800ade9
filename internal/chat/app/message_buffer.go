package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"
	"realtime_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// MessageBuffer 每個房間一個訊息視窗, 合併歷史分頁與即時推送
type MessageBuffer struct {
	mu        sync.Mutex
	repo      repository.MessageRepository
	rooms     map[string]*roomWindow
	observers []func(roomID string)
}

type roomWindow struct {
	messages []domain.Message
	ids      map[string]struct{}

	pageSize    int
	cursor      time.Time
	hasCursor   bool
	hasMore     bool
	backfilling bool
	loaded      bool
	initSeq     uint64

	err    error
	lastOp domain.FetchOp
}

// NewMessageBuffer create MessageBuffer
func NewMessageBuffer(repo repository.MessageRepository) *MessageBuffer {
	return &MessageBuffer{
		repo:  repo,
		rooms: make(map[string]*roomWindow),
	}
}

// OnChange called after any window change, outside the lock
func (b *MessageBuffer) OnChange(fn func(roomID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// LoadInitial fetch the newest pageSize messages, cursor = oldest fetched timestamp
func (b *MessageBuffer) LoadInitial(ctx context.Context, roomID string, pageSize int) error {
	if pageSize <= 0 {
		return domain.ErrInvalidPageSize
	}

	b.mu.Lock()
	w := b.rooms[roomID]
	if w == nil {
		w = &roomWindow{ids: make(map[string]struct{})}
		b.rooms[roomID] = w
	}
	w.pageSize = pageSize
	w.lastOp = domain.FetchInitial
	w.initSeq++
	seq := w.initSeq
	b.mu.Unlock()

	msgs, err := b.repo.FetchLatest(ctx, roomID, pageSize)
	metrics.Get().RecordFetch(string(domain.FetchInitial), err == nil)

	b.mu.Lock()
	if b.rooms[roomID] != w || w.initSeq != seq {
		b.mu.Unlock()
		logger.Log.Debug("discard stale initial page", zap.String("room_id", roomID))
		return nil
	}
	if err != nil {
		fetchErr := &domain.FetchError{RoomID: roomID, Op: domain.FetchInitial, Err: err}
		w.err = fetchErr
		b.mu.Unlock()
		b.notify(roomID)
		return fetchErr
	}

	w.err = nil
	oldest, ok := w.mergeLocked(roomID, msgs)
	w.hasCursor = ok
	if ok {
		w.cursor = oldest
	}
	w.hasMore = len(msgs) == pageSize
	w.loaded = true
	b.mu.Unlock()

	b.notify(roomID)
	return nil
}

// LoadOlder one page older than the cursor.
// no-op while backfilling, without cursor, or when no more history
func (b *MessageBuffer) LoadOlder(ctx context.Context, roomID string) error {
	b.mu.Lock()
	w := b.rooms[roomID]
	if w == nil {
		b.mu.Unlock()
		return domain.ErrRoomNotOpen
	}
	if w.backfilling || !w.hasCursor || !w.hasMore {
		b.mu.Unlock()
		return nil
	}
	w.backfilling = true
	w.lastOp = domain.FetchOlder
	cursor, size := w.cursor, w.pageSize
	b.mu.Unlock()
	b.notify(roomID)

	msgs, err := b.repo.FetchBefore(ctx, roomID, cursor, size)
	metrics.Get().RecordFetch(string(domain.FetchOlder), err == nil)

	b.mu.Lock()
	if b.rooms[roomID] != w {
		b.mu.Unlock()
		logger.Log.Debug("discard stale older page", zap.String("room_id", roomID))
		return nil
	}
	w.backfilling = false
	if err != nil {
		fetchErr := &domain.FetchError{RoomID: roomID, Op: domain.FetchOlder, Err: err}
		w.err = fetchErr
		b.mu.Unlock()
		b.notify(roomID)
		return fetchErr
	}

	w.err = nil
	if oldest, ok := w.mergeLocked(roomID, msgs); ok && oldest.Before(w.cursor) {
		w.cursor = oldest
	}
	w.hasMore = len(msgs) == size
	b.mu.Unlock()

	b.notify(roomID)
	return nil
}

// OnLivePush add one pushed message if its room is open and the id is new.
// cursor is not touched
func (b *MessageBuffer) OnLivePush(msg domain.Message) bool {
	if err := msg.Validate(); err != nil {
		logger.Log.Warn("drop malformed live message", zap.Error(err))
		metrics.Get().RecordDropped(domain.EventNewMessage)
		return false
	}

	b.mu.Lock()
	w := b.rooms[msg.RoomID]
	if w == nil {
		b.mu.Unlock()
		return false
	}
	if _, dup := w.ids[msg.ID]; dup {
		b.mu.Unlock()
		metrics.Get().RecordDuplicate()
		return false
	}
	w.insertLocked(msg)
	b.mu.Unlock()

	b.notify(msg.RoomID)
	return true
}

// Retry re-issue the operation that failed
func (b *MessageBuffer) Retry(ctx context.Context, roomID string) error {
	b.mu.Lock()
	w := b.rooms[roomID]
	if w == nil {
		b.mu.Unlock()
		return domain.ErrRoomNotOpen
	}
	failed, op, size := w.err != nil, w.lastOp, w.pageSize
	b.mu.Unlock()

	if !failed {
		return nil
	}
	if op == domain.FetchOlder {
		return b.LoadOlder(ctx, roomID)
	}
	return b.LoadInitial(ctx, roomID, size)
}

// Window snapshot of one room
func (b *MessageBuffer) Window(roomID string) (domain.RoomWindow, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.rooms[roomID]
	if w == nil {
		return domain.RoomWindow{}, false
	}

	view := domain.RoomWindow{
		RoomID:      roomID,
		Messages:    append([]domain.Message(nil), w.messages...),
		HasMore:     w.hasMore,
		Backfilling: w.backfilling,
		Loaded:      w.loaded,
	}
	if w.err != nil {
		view.Error = w.err.Error()
	}
	return view, true
}

// Err last fetch error of the room
func (b *MessageBuffer) Err(roomID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.rooms[roomID]; w != nil {
		return w.err
	}
	return domain.ErrRoomNotOpen
}

// Drop forget the room, in-flight fetches for it are discarded
func (b *MessageBuffer) Drop(roomID string) {
	b.mu.Lock()
	delete(b.rooms, roomID)
	b.mu.Unlock()
}

func (b *MessageBuffer) notify(roomID string) {
	b.mu.Lock()
	observers := append([]func(string){}, b.observers...)
	b.mu.Unlock()
	for _, fn := range observers {
		fn(roomID)
	}
}

// mergeLocked add new valid messages, return the oldest valid fetched timestamp
func (w *roomWindow) mergeLocked(roomID string, msgs []domain.Message) (time.Time, bool) {
	var (
		oldest time.Time
		found  bool
		added  int
	)
	for _, m := range msgs {
		if err := m.Validate(); err != nil || m.RoomID != roomID {
			logger.Log.Warn("skip invalid fetched message", zap.String("room_id", roomID), zap.String("id", m.ID))
			continue
		}
		if !found || m.Timestamp.Before(oldest) {
			oldest, found = m.Timestamp, true
		}
		if _, dup := w.ids[m.ID]; dup {
			continue
		}
		w.ids[m.ID] = struct{}{}
		w.messages = append(w.messages, m)
		added++
	}
	if added > 0 {
		sort.SliceStable(w.messages, func(i, j int) bool {
			return w.messages[i].Less(w.messages[j])
		})
	}
	return oldest, found
}

func (w *roomWindow) insertLocked(m domain.Message) {
	i := sort.Search(len(w.messages), func(i int) bool {
		return m.Less(w.messages[i])
	})
	w.messages = append(w.messages, domain.Message{})
	copy(w.messages[i+1:], w.messages[i:])
	w.messages[i] = m
	w.ids[m.ID] = struct{}{}
}

// BackfillTrigger top item visible -> LoadOlder, latched so one gesture fetches once
type BackfillTrigger struct {
	buf      *MessageBuffer
	roomID   string
	inFlight atomic.Bool
}

// NewBackfillTrigger create BackfillTrigger
func NewBackfillTrigger(buf *MessageBuffer, roomID string) *BackfillTrigger {
	return &BackfillTrigger{buf: buf, roomID: roomID}
}

// TopItemVisible returns false when a backfill from this trigger is already running
func (t *BackfillTrigger) TopItemVisible(ctx context.Context) (bool, error) {
	if !t.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer t.inFlight.Store(false)
	return true, t.buf.LoadOlder(ctx, t.roomID)
}
