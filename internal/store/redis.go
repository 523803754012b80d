package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions selects the server and logical database holding the event queue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis wraps the client shared by the queue and the health check.
type Redis struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds a client with short timeouts; it does not dial until first use.
func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client, addr: opts.Addr}
}

// Addr returns the configured server address.
func (r *Redis) Addr() string {
	if r == nil {
		return ""
	}
	return r.addr
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Backlog reports how many events are waiting under key.
func (r *Redis) Backlog(ctx context.Context, key string) (int64, error) {
	return r.Client.LLen(ctx, key).Result()
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
