package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"realtime_chat_client/internal/chat/domain"
)

// TypingAggregator 誰正在輸入, 到期由 Sweep 移除
type TypingAggregator struct {
	mu        sync.Mutex
	clock     Clock
	timeout   time.Duration
	selfID    string
	entries   map[string]*typingEntry
	seq       uint64
	observers []func(text string)
}

type typingEntry struct {
	domain.TypingEntry
	seq uint64
}

// NewTypingAggregator selfID signals are ignored
func NewTypingAggregator(selfID string, timeout time.Duration, clock Clock) *TypingAggregator {
	if clock == nil {
		clock = SystemClock
	}
	return &TypingAggregator{
		clock:   clock,
		timeout: timeout,
		selfID:  selfID,
		entries: make(map[string]*typingEntry),
	}
}

// OnChange called with the new text whenever the entry set changes
func (a *TypingAggregator) OnChange(fn func(text string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

// OnStart insert or refresh
func (a *TypingAggregator) OnStart(userID, name string) {
	if userID == "" || userID == a.selfID {
		return
	}

	a.mu.Lock()
	now := a.clock.Now()
	if e, ok := a.entries[userID]; ok {
		e.LastSignal = now
		renamed := e.UserName != name
		e.UserName = name
		a.unlockNotify(renamed)
		return
	}
	a.seq++
	a.entries[userID] = &typingEntry{
		TypingEntry: domain.TypingEntry{UserID: userID, UserName: name, LastSignal: now},
		seq:         a.seq,
	}
	a.unlockNotify(true)
}

// OnStop remove now
func (a *TypingAggregator) OnStop(userID string) {
	a.mu.Lock()
	_, ok := a.entries[userID]
	delete(a.entries, userID)
	a.unlockNotify(ok)
}

// Sweep remove entries whose last signal is older than timeout
func (a *TypingAggregator) Sweep() {
	a.mu.Lock()
	now := a.clock.Now()
	removed := false
	for id, e := range a.entries {
		if now.Sub(e.LastSignal) > a.timeout {
			delete(a.entries, id)
			removed = true
		}
	}
	a.unlockNotify(removed)
}

// Run sweep every interval on the aggregator's clock, blocks until ctx done
func (a *TypingAggregator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	var (
		mu    sync.Mutex
		timer Timer
		tick  func()
	)
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		a.Sweep()

		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() == nil {
			timer = a.clock.AfterFunc(interval, tick)
		}
	}

	mu.Lock()
	timer = a.clock.AfterFunc(interval, tick)
	mu.Unlock()

	<-ctx.Done()
	mu.Lock()
	timer.Stop()
	mu.Unlock()
}

// Entries first-seen order
func (a *TypingAggregator) Entries() []domain.TypingEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entriesLocked()
}

// Text typing indicator text, "" when nobody
func (a *TypingAggregator) Text() string {
	return TypingText(a.Entries())
}

func (a *TypingAggregator) entriesLocked() []domain.TypingEntry {
	list := make([]*typingEntry, 0, len(a.entries))
	for _, e := range a.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]domain.TypingEntry, len(list))
	for i, e := range list {
		out[i] = e.TypingEntry
	}
	return out
}

func (a *TypingAggregator) unlockNotify(changed bool) {
	if !changed || len(a.observers) == 0 {
		a.mu.Unlock()
		return
	}
	text := TypingText(a.entriesLocked())
	observers := append([]func(string){}, a.observers...)
	a.mu.Unlock()
	for _, fn := range observers {
		fn(text)
	}
}

// TypingText 0 / 1 / 2 / many
func TypingText(entries []domain.TypingEntry) string {
	switch len(entries) {
	case 0:
		return ""
	case 1:
		return entries[0].UserName + " is typing…"
	case 2:
		return entries[0].UserName + " and " + entries[1].UserName + " are typing…"
	default:
		return "Multiple people are typing…"
	}
}

// TypingSender local user's typing signals, auto stop after idle
type TypingSender struct {
	mu    sync.Mutex
	push  func(event string, payload interface{}) error
	clock Clock
	idle  time.Duration
	timer Timer
	gen   uint64
}

// NewTypingSender push sends a client event on the typing channel
func NewTypingSender(push func(event string, payload interface{}) error, idle time.Duration, clock Clock) *TypingSender {
	if clock == nil {
		clock = SystemClock
	}
	return &TypingSender{push: push, clock: clock, idle: idle}
}

// Start push typing_start, re-arm the idle stop
func (s *TypingSender) Start() error {
	s.mu.Lock()
	s.disarmLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.idle, func() { s.expire(gen) })
	s.mu.Unlock()

	return s.push(domain.EventTypingStart, struct{}{})
}

// Stop push typing_stop now
func (s *TypingSender) Stop() error {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()

	return s.push(domain.EventTypingStop, struct{}{})
}

// Active idle timer armed
func (s *TypingSender) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close disarm without pushing
func (s *TypingSender) Close() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()
}

func (s *TypingSender) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.gen++
	s.mu.Unlock()

	_ = s.push(domain.EventTypingStop, struct{}{})
}

func (s *TypingSender) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
