package app

import (
	"sort"
	"sync"
	"time"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/metrics"
)

// PresenceTracker 全域在線名單, 更新先排隊, 每個 debounce 視窗 flush 一次
type PresenceTracker struct {
	mu        sync.Mutex
	clock     Clock
	debounce  time.Duration
	entries   map[string]domain.PresenceEntry
	pending   []domain.PresenceUpdate
	timer     Timer
	observers []func()
}

// NewPresenceTracker create PresenceTracker
func NewPresenceTracker(debounce time.Duration, clock Clock) *PresenceTracker {
	if clock == nil {
		clock = SystemClock
	}
	return &PresenceTracker{
		clock:    clock,
		debounce: debounce,
		entries:  make(map[string]domain.PresenceEntry),
	}
}

// OnChange called after each flush
func (t *PresenceTracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Apply queue an update; the first update of a window arms the flush timer
func (t *PresenceTracker) Apply(u domain.PresenceUpdate) {
	t.mu.Lock()
	t.pending = append(t.pending, u)
	if t.timer == nil {
		if t.debounce <= 0 {
			t.mu.Unlock()
			t.Flush()
			return
		}
		t.timer = t.clock.AfterFunc(t.debounce, t.Flush)
	}
	t.mu.Unlock()
}

// Flush apply every pending update in delivery order
func (t *PresenceTracker) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	batch := t.pending
	t.pending = nil
	if len(batch) == 0 {
		t.mu.Unlock()
		return
	}

	for _, u := range batch {
		t.applyLocked(u)
	}
	online := 0
	for _, e := range t.entries {
		if e.Status == domain.StatusOnline {
			online++
		}
	}
	observers := append([]func(){}, t.observers...)
	t.mu.Unlock()

	metrics.Get().RecordPresenceFlush(online)
	for _, fn := range observers {
		fn()
	}
}

// applyLocked snapshot replaces; diff removes leaves then sets joins,
// so a user in both (meta update) ends up with the joined meta
func (t *PresenceTracker) applyLocked(u domain.PresenceUpdate) {
	switch u.Kind {
	case domain.UpdateSnapshot:
		t.entries = make(map[string]domain.PresenceEntry, len(u.Joins))
	case domain.UpdateDiff:
		for _, id := range u.Leaves {
			delete(t.entries, id)
		}
	}
	for _, e := range u.Joins {
		t.entries[e.UserID] = e
	}
}

// Pending updates waiting for the flush
func (t *PresenceTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// IsOnline status online
func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	return ok && e.Status == domain.StatusOnline
}

// Get entry for user
func (t *PresenceTracker) Get(userID string) (domain.PresenceEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	return e, ok
}

// Online users with status online, by user id
func (t *PresenceTracker) Online() []domain.PresenceEntry {
	return t.list(func(e domain.PresenceEntry) bool { return e.Status == domain.StatusOnline })
}

// All every entry, by user id
func (t *PresenceTracker) All() []domain.PresenceEntry {
	return t.list(func(domain.PresenceEntry) bool { return true })
}

func (t *PresenceTracker) list(keep func(domain.PresenceEntry) bool) []domain.PresenceEntry {
	t.mu.Lock()
	out := make([]domain.PresenceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
