package app

import (
	"context"
	"encoding/json"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"
	"realtime_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// RoomSession one open room: typing channel, typing state, backfill trigger
type RoomSession struct {
	RoomID   string
	Typing   *TypingAggregator
	Sender   *TypingSender
	Backfill *BackfillTrigger

	cancel context.CancelFunc
}

func (rs *RoomSession) bindings() []Binding {
	return []Binding{
		{Event: domain.EventUserTyping, Fn: func(payload json.RawMessage) {
			p, err := domain.DecodeTyping(payload, true)
			if err != nil {
				logger.Log.Warn("drop typing payload", zap.String("room_id", rs.RoomID), zap.Error(err))
				metrics.Get().RecordDropped(domain.EventUserTyping)
				return
			}
			rs.Typing.OnStart(p.UserID, p.UserName)
		}},
		{Event: domain.EventUserStoppedTyping, Fn: func(payload json.RawMessage) {
			p, err := domain.DecodeTyping(payload, false)
			if err != nil {
				logger.Log.Warn("drop typing payload", zap.String("room_id", rs.RoomID), zap.Error(err))
				metrics.Get().RecordDropped(domain.EventUserStoppedTyping)
				return
			}
			rs.Typing.OnStop(p.UserID)
		}},
	}
}

func (rs *RoomSession) close() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.Sender.Close()
}
