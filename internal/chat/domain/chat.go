package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Chat 一個房間, name 為 nil 的是私訊
type Chat struct {
	ID      string     `json:"id"`
	Name    *string    `json:"name"`
	Private bool       `json:"private"`
	Members []UserNode `json:"members"`
}

// Direct no name means a direct message
func (c Chat) Direct() bool {
	return c.Name == nil || *c.Name == ""
}

// DisplayName group name, the other member for a 1:1 DM, otherwise a member count
func (c Chat) DisplayName(selfID string) string {
	if !c.Direct() {
		return *c.Name
	}
	var others []UserNode
	for _, m := range c.Members {
		if m.ID != selfID {
			others = append(others, m)
		}
	}
	if len(others) == 1 {
		if full := strings.TrimSpace(others[0].FirstName + " " + others[0].LastName); full != "" {
			return full
		}
		return others[0].Username
	}
	return fmt.Sprintf("Direct Message (%d people)", len(c.Members))
}

// DecodeChatUpdated chat_updated payload, a bare chat object
func DecodeChatUpdated(payload json.RawMessage) (Chat, error) {
	var c Chat
	if err := json.Unmarshal(payload, &c); err != nil {
		return Chat{}, Malformed("chat_updated: %v", err)
	}
	if c.ID == "" {
		return Chat{}, Malformed("chat_updated without id")
	}
	return c, nil
}
