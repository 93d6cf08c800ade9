package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"realtime_chat_client/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrRedisNil key not found
var ErrRedisNil = errors.New("redis.Nil")

// RedisRepository 定义接口
type RedisRepository[T any] interface {
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Get(ctx context.Context, key string) (T, error)
	Del(ctx context.Context, key string) error
	GetTTL(ctx context.Context, key string) (int, error)
	ExtendTTL(ctx context.Context, key string, ttl time.Duration) error
}

// redisRepository 实现 RedisRepository, value 以 JSON 存放
type redisRepository[T any] struct {
	client *redis.Client
}

// NewRedisClient inti Redis Sentinel connection
func NewRedisClient(masterName string, sentinelAddrs []string, db int) (*redis.Client, error) {
	rdb := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,    // 哨兵主节点名称
		SentinelAddrs: sentinelAddrs, // 哨兵地址列表
		DB:            db,            // Redis 数据库编号
	})

	// 测试连接
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis sentinel: %w", err)
	}

	return rdb, nil
}

// NewRedisStandalone connect a single redis node, retry c.RetryCount times
func NewRedisStandalone(ctx context.Context, c RedisConnection) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: c.Addr,
		DB:   c.DB,
	})

	var err error
	for i := 0; i <= c.RetryCount; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return rdb, nil
		}
		logger.Log.Warn("redis ping failed", zap.String("addr", c.Addr), zap.Int("try", i), zap.Error(err))

		if i < c.RetryCount {
			time.Sleep(c.RetryInterval)
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis %s after retries: %w", c.Addr, err)
}

// NewRedisRepository wrap a connected client as RedisRepository (Set , Get, Del, GetTTL, ExtendTTL)
func NewRedisRepository[T any](client *redis.Client) RedisRepository[T] {
	return &redisRepository[T]{client: client}
}

func (r *redisRepository[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisRepository[T]) Get(ctx context.Context, key string) (T, error) {
	var zeroValue T // 用于返回空值
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return zeroValue, ErrRedisNil
	} else if err != nil {
		return zeroValue, fmt.Errorf("failed to get %s: %w", key, err)
	}

	// 解析 JSON 数据
	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		logger.Log.Error("redis get unmarshal", zap.String("key", key), zap.Error(err))
		return zeroValue, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return result, nil
}

func (r *redisRepository[T]) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisRepository[T]) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *redisRepository[T]) GetTTL(ctx context.Context, key string) (int, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get TTL for key %s: %w", key, err)
	}

	if ttl < 0 {
		return 0, nil
	}

	return int(ttl.Seconds()), nil
}
