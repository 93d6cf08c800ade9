package app

import (
	"context"
	"sort"
	"sync"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/internal/chat/repository"
	"realtime_chat_client/pkg/logger"

	"go.uber.org/zap"
)

// ChatItem 一筆側欄項目
type ChatItem struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Private     bool              `json:"private"`
	Members     []domain.UserNode `json:"members"`
}

// ChatListView 群組與私訊分開, 各自依顯示名稱排序
type ChatListView struct {
	Groups []ChatItem `json:"groups"`
	Direct []ChatItem `json:"direct"`
	Loaded bool       `json:"loaded"`
	Error  string     `json:"error,omitempty"`
}

// ChatList userChats 快照, 再套上 chat_updated 推送
type ChatList struct {
	mu        sync.Mutex
	repo      repository.ChatRepository
	chats     map[string]domain.Chat
	seq       uint64
	updated   map[string]uint64
	loaded    bool
	err       error
	observers []func()
}

// NewChatList create ChatList, nil repo means Load is a no-op
func NewChatList(repo repository.ChatRepository) *ChatList {
	return &ChatList{
		repo:    repo,
		chats:   make(map[string]domain.Chat),
		updated: make(map[string]uint64),
	}
}

// SetRepository swap the source used by Load
func (l *ChatList) SetRepository(repo repository.ChatRepository) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.repo = repo
}

// OnChange called after Load / Apply, outside the lock
func (l *ChatList) OnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Load replace the list with userChats. a push applied while the query is in flight wins over the query result
func (l *ChatList) Load(ctx context.Context) error {
	l.mu.Lock()
	repo, start := l.repo, l.seq
	l.mu.Unlock()
	if repo == nil {
		return nil
	}

	chats, err := repo.UserChats(ctx)

	l.mu.Lock()
	if err != nil {
		l.err = err
		l.mu.Unlock()
		logger.Log.Warn("load user chats", zap.Error(err))
		l.notify()
		return err
	}
	next := make(map[string]domain.Chat, len(chats))
	for _, c := range chats {
		next[c.ID] = c
	}
	for id, at := range l.updated {
		if at > start {
			next[id] = l.chats[id]
		}
	}
	l.chats = next
	l.updated = make(map[string]uint64)
	l.loaded = true
	l.err = nil
	l.mu.Unlock()

	logger.Log.Debug("user chats loaded", zap.Int("count", len(chats)))
	l.notify()
	return nil
}

// Apply upsert one chat from chat_updated
func (l *ChatList) Apply(c domain.Chat) {
	l.mu.Lock()
	l.seq++
	l.chats[c.ID] = c
	l.updated[c.ID] = l.seq
	l.mu.Unlock()
	l.notify()
}

// Get one chat
func (l *ChatList) Get(id string) (domain.Chat, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chats[id]
	return c, ok
}

// View split into groups / direct messages with names resolved for selfID
func (l *ChatList) View(selfID string) ChatListView {
	l.mu.Lock()
	v := ChatListView{Groups: []ChatItem{}, Direct: []ChatItem{}, Loaded: l.loaded}
	if l.err != nil {
		v.Error = l.err.Error()
	}
	for _, c := range l.chats {
		item := ChatItem{ID: c.ID, DisplayName: c.DisplayName(selfID), Private: c.Private, Members: append([]domain.UserNode(nil), c.Members...)}
		if c.Direct() {
			v.Direct = append(v.Direct, item)
		} else {
			v.Groups = append(v.Groups, item)
		}
	}
	l.mu.Unlock()

	byName := func(items []ChatItem) {
		sort.Slice(items, func(i, j int) bool {
			if items[i].DisplayName != items[j].DisplayName {
				return items[i].DisplayName < items[j].DisplayName
			}
			return items[i].ID < items[j].ID
		})
	}
	byName(v.Groups)
	byName(v.Direct)
	return v
}

func (l *ChatList) notify() {
	l.mu.Lock()
	obs := append([]func(){}, l.observers...)
	l.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}
