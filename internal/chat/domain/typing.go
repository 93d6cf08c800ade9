package domain

import (
	"encoding/json"
	"time"
)

// TypingEntry 正在輸入的使用者
type TypingEntry struct {
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	LastSignal time.Time `json:"last_signal"`
}

// TypingPayload user_typing / user_stopped_typing
type TypingPayload struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// DecodeTyping user_id 必填, user_name 只有 start 需要
func DecodeTyping(payload json.RawMessage, needName bool) (TypingPayload, error) {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return p, Malformed("typing: %v", err)
	}
	if p.UserID == "" {
		return p, Malformed("typing without user_id")
	}
	if needName && p.UserName == "" {
		return p, Malformed("typing %s without user_name", p.UserID)
	}
	return p, nil
}
