package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Author 訊息作者
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName first + last, fallback username
func (a Author) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// Message 表示一則聊天訊息, 不可變
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate id / room / timestamp 必填
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return Malformed("message without id")
	case m.RoomID == "":
		return Malformed("message %s without room id", m.ID)
	case m.Timestamp.IsZero():
		return Malformed("message %s without timestamp", m.ID)
	}
	return nil
}

// Less order by (timestamp, id)
func (m Message) Less(o Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.ID < o.ID
}

// UserNode graphql user shape
type UserNode struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ToAuthor convert
func (u UserNode) ToAuthor() Author {
	return Author{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

// MessageNode graphql / push message shape
type MessageNode struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	InsertedAt string    `json:"insertedAt"`
	User       *UserNode `json:"user"`
}

// ToMessage convert wire node to Message, all-or-nothing
func (n MessageNode) ToMessage(roomID string) (Message, error) {
	if n.ID == "" {
		return Message{}, Malformed("message without id")
	}
	ts, err := ParseTimestamp(n.InsertedAt)
	if err != nil {
		return Message{}, Malformed("message %s insertedAt %q", n.ID, n.InsertedAt)
	}

	m := Message{
		ID:        n.ID,
		RoomID:    roomID,
		Content:   n.Content,
		Timestamp: ts,
	}
	if n.User != nil {
		m.Author = n.User.ToAuthor()
	}
	return m, m.Validate()
}

// NewMessagePayload new_message push on messages:<userId>
type NewMessagePayload struct {
	ChatID      string       `json:"chat_id"`
	ChatIDCamel string       `json:"chatId"`
	Message     *MessageNode `json:"message"`
}

// DecodeNewMessage decode a new_message payload
func DecodeNewMessage(payload json.RawMessage) (Message, error) {
	var p NewMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Message{}, Malformed("new_message: %v", err)
	}
	chatID := p.ChatID
	if chatID == "" {
		chatID = p.ChatIDCamel
	}
	if chatID == "" || p.Message == nil {
		return Message{}, Malformed("new_message without chat id or message")
	}
	return p.Message.ToMessage(chatID)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp ISO-8601 with or without zone, naive 視為 UTC
func ParseTimestamp(s string) (time.Time, error) {
	var (
		t   time.Time
		err error
	)
	for _, layout := range timestampLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}
