package domain

import (
	"encoding/json"
	"sort"

	"realtime_chat_client/pkg"
)

// PresenceStatus online / away / offline
type PresenceStatus string

const (
	// StatusOnline online
	StatusOnline PresenceStatus = "online"
	// StatusAway away
	StatusAway PresenceStatus = "away"
	// StatusOffline offline
	StatusOffline PresenceStatus = "offline"
)

var presenceStatuses = []PresenceStatus{StatusOnline, StatusAway, StatusOffline}

// PresenceEntry 使用者在線資訊
type PresenceEntry struct {
	UserID     string         `json:"user_id"`
	Username   string         `json:"username"`
	FullName   string         `json:"full_name"`
	Status     PresenceStatus `json:"status"`
	LastSeen   string         `json:"last_seen,omitempty"`
	DeviceType string         `json:"device_type,omitempty"`
}

// UpdateKind snapshot or diff
type UpdateKind int

const (
	// UpdateSnapshot full replacement (presence_state)
	UpdateSnapshot UpdateKind = iota
	// UpdateDiff joins / leaves (presence_diff)
	UpdateDiff
)

func (k UpdateKind) String() string {
	if k == UpdateSnapshot {
		return "snapshot"
	}
	return "diff"
}

// PresenceUpdate tagged variant, snapshot uses Joins as the full set
type PresenceUpdate struct {
	Kind   UpdateKind
	Joins  []PresenceEntry
	Leaves []string

	// Skipped metas dropped while decoding
	Skipped int
}

// Snapshot build a snapshot update
func Snapshot(entries ...PresenceEntry) PresenceUpdate {
	return PresenceUpdate{Kind: UpdateSnapshot, Joins: entries}
}

// Diff build a diff update
func Diff(joins []PresenceEntry, leaves []string) PresenceUpdate {
	return PresenceUpdate{Kind: UpdateDiff, Joins: joins, Leaves: leaves}
}

type presenceMeta struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Status     string `json:"status"`
	LastSeen   string `json:"last_seen"`
	DeviceType string `json:"device_type"`
}

type presenceMetas struct {
	Metas []presenceMeta `json:"metas"`
}

type presenceDiff struct {
	Joins  map[string]presenceMetas `json:"joins"`
	Leaves map[string]presenceMetas `json:"leaves"`
}

// DecodePresenceState presence_state {key: {metas: [...]}}
func DecodePresenceState(payload json.RawMessage) (PresenceUpdate, error) {
	var state map[string]presenceMetas
	if err := json.Unmarshal(payload, &state); err != nil {
		return PresenceUpdate{}, Malformed("presence_state: %v", err)
	}
	joins, skipped := entriesFrom(state)
	u := Snapshot(joins...)
	u.Skipped = skipped
	return u, nil
}

// DecodePresenceDiff presence_diff {joins: {...}, leaves: {...}}
func DecodePresenceDiff(payload json.RawMessage) (PresenceUpdate, error) {
	var diff presenceDiff
	if err := json.Unmarshal(payload, &diff); err != nil {
		return PresenceUpdate{}, Malformed("presence_diff: %v", err)
	}
	joins, skipped := entriesFrom(diff.Joins)

	leaves := make([]string, 0, len(diff.Leaves))
	for _, key := range sortedKeys(diff.Leaves) {
		id := key
		if metas := diff.Leaves[key].Metas; len(metas) > 0 && metas[0].UserID != "" {
			id = metas[0].UserID
		}
		leaves = append(leaves, id)
	}

	u := Diff(joins, leaves)
	u.Skipped = skipped
	return u, nil
}

// entriesFrom first meta of each key, keys in sorted order so decoding is deterministic
func entriesFrom(m map[string]presenceMetas) ([]PresenceEntry, int) {
	entries := make([]PresenceEntry, 0, len(m))
	skipped := 0
	for _, key := range sortedKeys(m) {
		metas := m[key].Metas
		if len(metas) == 0 || metas[0].UserID == "" {
			skipped++
			continue
		}
		meta := metas[0]

		status := PresenceStatus(meta.Status)
		if status == "" {
			status = StatusOnline
		}
		if !pkg.Contains(presenceStatuses, status) {
			skipped++
			continue
		}

		entries = append(entries, PresenceEntry{
			UserID:     meta.UserID,
			Username:   meta.Username,
			FullName:   meta.FullName,
			Status:     status,
			LastSeen:   meta.LastSeen,
			DeviceType: meta.DeviceType,
		})
	}
	return entries, skipped
}

func sortedKeys(m map[string]presenceMetas) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
