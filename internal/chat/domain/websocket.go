package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Phoenix reserved events
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	// TopicPhoenix heartbeat topic
	TopicPhoenix = "phoenix"

	// ReplyOK phx_reply status
	ReplyOK = "ok"
)

// chat events
const (
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventPresenceState     = "presence_state"
	EventPresenceDiff      = "presence_diff"
	EventNewMessage        = "new_message"
	EventChatUpdated       = "chat_updated"
)

// PresenceTopic global presence channel
const PresenceTopic = "presence:global"

// TypingTopic typing:<roomId>
func TypingTopic(roomID string) string {
	return "typing:" + roomID
}

// MessagesTopic messages:<userId>
func MessagesTopic(userID string) string {
	return "messages:" + userID
}

// ConnState socket lifecycle
type ConnState string

const (
	// ConnConnecting dialing
	ConnConnecting ConnState = "connecting"
	// ConnOpen socket open
	ConnOpen ConnState = "open"
	// ConnClosed closed by Disconnect or network offline
	ConnClosed ConnState = "closed"
	// ConnReconnecting waiting for backoff timer
	ConnReconnecting ConnState = "reconnecting"
	// ConnDisconnected gave up after max attempts
	ConnDisconnected ConnState = "disconnected"
)

// ChannelState join lifecycle
type ChannelState string

const (
	// ChannelJoining phx_join sent
	ChannelJoining ChannelState = "joining"
	// ChannelJoined phx_reply ok
	ChannelJoined ChannelState = "joined"
	// ChannelErrored join failed or socket dropped
	ChannelErrored ChannelState = "errored"
	// ChannelLeft last handle left
	ChannelLeft ChannelState = "left"
)

// Frame Phoenix v2 frame [join_ref, ref, topic, event, payload]
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// NewFrame marshal payload into a frame
func NewFrame(joinRef, ref, topic, event string, payload interface{}) (Frame, error) {
	f := Frame{JoinRef: joinRef, Ref: ref, Topic: topic, Event: event}
	if payload == nil {
		f.Payload = json.RawMessage("{}")
		return f, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return f, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	f.Payload = b
	return f, nil
}

// MarshalJSON empty refs are null
func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{nullable(f.JoinRef), nullable(f.Ref), f.Topic, f.Event, payload})
}

// UnmarshalJSON accept string / number / null refs
func (f *Frame) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return Malformed("frame: %v", err)
	}
	if len(parts) != 5 {
		return Malformed("frame has %d elements", len(parts))
	}

	joinRef, err := decodeRef(parts[0])
	if err != nil {
		return err
	}
	ref, err := decodeRef(parts[1])
	if err != nil {
		return err
	}

	var topic, event string
	if err := json.Unmarshal(parts[2], &topic); err != nil || topic == "" {
		return Malformed("frame topic")
	}
	if err := json.Unmarshal(parts[3], &event); err != nil || event == "" {
		return Malformed("frame event")
	}

	*f = Frame{JoinRef: joinRef, Ref: ref, Topic: topic, Event: event, Payload: parts[4]}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func decodeRef(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", Malformed("frame ref %s", string(raw))
}

// Reply phx_reply payload
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Reason best effort reason text from response {"reason": ...}
func (r Reply) Reason() string {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(r.Response, &body); err == nil && body.Reason != "" {
		return body.Reason
	}
	if len(r.Response) > 0 {
		return string(r.Response)
	}
	return r.Status
}

// FormatRef ref counter to wire string
func FormatRef(n uint64) string {
	return strconv.FormatUint(n, 10)
}
