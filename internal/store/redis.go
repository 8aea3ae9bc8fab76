package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "streamweaver:session:"

// Redis persists session records in Redis with native key TTLs, giving
// every instance in a deployment the same view of session metadata.
type Redis struct {
	client redis.UniversalClient
}

// RedisOptions configures the Redis store connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client. The caller keeps ownership
// of the client lifecycle only until Close is called on the store.
func NewRedisWithClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (r *Redis) Get(ctx context.Context, sessionID string) (Record, error) {
	raw, err := r.client.Get(ctx, redisKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Redis) Put(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey(sessionID), raw, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, redisKey(sessionID)).Err()
}

func (r *Redis) ListActive(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var rec Record
		if json.Unmarshal(raw, &rec) != nil {
			continue
		}
		if rec.Status == StatusActive {
			ids = append(ids, strings.TrimPrefix(key, redisKeyPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Redis) Close() error { return r.client.Close() }
