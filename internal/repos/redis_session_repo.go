package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// session:{sid}:{key} -> value
const keySessionEntry = "session:%s:%s"

// RedisSessionRepo keeps session values in redis with a per-key TTL.
type RedisSessionRepo struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisSessionRepo(rdb *redis.Client, ttl time.Duration) *RedisSessionRepo {
	return &RedisSessionRepo{RDB: rdb, TTL: ttl}
}

func (r *RedisSessionRepo) Get(ctx context.Context, sid, key string) (string, error) {
	v, err := r.RDB.Get(ctx, fmt.Sprintf(keySessionEntry, sid, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisSessionRepo) Set(ctx context.Context, sid, key, value string) error {
	return r.RDB.Set(ctx, fmt.Sprintf(keySessionEntry, sid, key), value, r.TTL).Err()
}

func (r *RedisSessionRepo) Clear(ctx context.Context, sid, key string) error {
	return r.RDB.Del(ctx, fmt.Sprintf(keySessionEntry, sid, key)).Err()
}
