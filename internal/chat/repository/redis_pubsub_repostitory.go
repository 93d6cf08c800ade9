package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"realtime_chat_client/internal/chat/domain"
	"realtime_chat_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ViewPublisher definition fan out reconciled view changes
type ViewPublisher interface {
	Publish(channel string, message interface{}) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		ctx:    context.Background(),
	}
}

// Publish 將 message 序列化後，發布到指定 channel
func (r *RedisPubSub) Publish(channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Subscribe 訂閱 view channel，收到訊息後呼叫 handler 處理
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(ev domain.ViewEvent)) error {
	sub := r.client.Subscribe(ctx, channel)
	// 等 subscribe 確認, 避免漏掉之後馬上 publish 的訊息
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var ev domain.ViewEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					logger.Log.Error("view event unmarshal", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(ev)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", channel))
				return
			}
		}
	}()
	return nil
}
