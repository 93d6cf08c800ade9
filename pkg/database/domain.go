package database

import "time"

// RedisConnection definition redis standalone setting
type RedisConnection struct {
	Addr string
	DB   int

	RetryCount    int
	RetryInterval time.Duration
}
