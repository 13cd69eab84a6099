package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "mobiletracking:preferences"

// Redis is a Store that keeps preferences in a single Redis hash.
type Redis struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash holding the preferences. Use a distinct key per install
	// when several installs share one server.
	Key string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connect %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(rdb, opts.Key), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	return &Redis{client: rdb, key: key}
}

func (r *Redis) Load(ctx context.Context) (Preferences, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil && err != redis.Nil {
		return Preferences{}, wrapRedisErr(err)
	}
	return decode(fields), nil
}

func (r *Redis) Save(ctx context.Context, p Preferences) error {
	data := make(map[string]any, 4)
	for k, v := range encode(p) {
		data[k] = v
	}
	return wrapRedisErr(r.client.HSet(ctx, r.key, data).Err())
}

func (r *Redis) Clear(ctx context.Context) error {
	return wrapRedisErr(r.client.Del(ctx, r.key).Err())
}

func (r *Redis) Close() error { return r.client.Close() }

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if err == redis.ErrClosed {
		return ErrClosed
	}
	return fmt.Errorf("redis store: %w", err)
}
