package domain

// RoomWindow 某個房間目前的訊息視窗 (snapshot, caller owns the slice)
type RoomWindow struct {
	RoomID      string    `json:"room_id"`
	Messages    []Message `json:"messages"`
	HasMore     bool      `json:"has_more"`
	Backfilling bool      `json:"backfilling"`
	Loaded      bool      `json:"loaded"`
	Error       string    `json:"error,omitempty"`
}

// ViewKind what changed
type ViewKind string

const (
	// ViewRoom room window changed
	ViewRoom ViewKind = "room"
	// ViewPresence presence roster flushed
	ViewPresence ViewKind = "presence"
	// ViewTyping typing text changed
	ViewTyping ViewKind = "typing"
	// ViewConnection connection state changed
	ViewConnection ViewKind = "connection"
	// ViewChats chat list changed
	ViewChats ViewKind = "chats"
)

// ViewEvent 發布到 redis 給其他 process 看
type ViewEvent struct {
	Kind      ViewKind    `json:"kind"`
	RoomID    string      `json:"room_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// RoomViewChannel redis channel for a room
func RoomViewChannel(roomID string) string {
	return "chat:view:room:" + roomID
}

// PresenceViewChannel redis channel for presence
const PresenceViewChannel = "chat:view:presence"

// ConnectionViewChannel redis channel for socket state
const ConnectionViewChannel = "chat:view:connection"

// ChatsViewChannel redis channel for the chat list
const ChatsViewChannel = "chat:view:chats"
