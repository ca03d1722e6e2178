package schema

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
)

// DefaultRedisPrefix namespaces schema keys in a shared Redis.
const DefaultRedisPrefix = "databank:schema:"

// RedisCache stores table metadata as JSON in Redis, so several service
// instances share one view of the schema.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client. A ttl of zero stores keys without expiry.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects to the Redis server at addr and pings it.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "could not connect to redis", err)
	}
	return rdb, nil
}

func (r *RedisCache) key(table string) string {
	return r.prefix + table
}

func (r *RedisCache) Get(ctx context.Context, table string) (*database.TableInfo, bool, error) {
	b, err := r.client.Get(ctx, r.key(table)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrKindStoreUnavailable, "redis get failed", err)
	}

	var info database.TableInfo
	if err := json.Unmarshal(b, &info); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &info, true, nil
}

func (r *RedisCache) Set(ctx context.Context, table string, info *database.TableInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "encode table info", err)
	}
	if err := r.client.Set(ctx, r.key(table), b, r.ttl).Err(); err != nil {
		return errs.Wrap(errs.ErrKindStoreUnavailable, "redis set failed", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, table string) error {
	if err := r.client.Del(ctx, r.key(table)).Err(); err != nil {
		return errs.Wrap(errs.ErrKindStoreUnavailable, "redis delete failed", err)
	}
	return nil
}
