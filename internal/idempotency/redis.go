package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idempotency:v1:"

// Each key is a hash {tx, state, result} with a TTL. Scripts keep every
// check-and-write atomic on the server.
var (
	reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'tx', ARGV[1], 'state', 'reserved')
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1`)

	completeScript = redis.NewScript(`
local tx = redis.call('HGET', KEYS[1], 'tx')
if tx and tx ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'tx', ARGV[1], 'state', 'completed', 'result', ARGV[2])
if not tx then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1`)

	releaseScript = redis.NewScript(`
local tx = redis.call('HGET', KEYS[1], 'tx')
if not tx then
  return 1
end
if tx ~= ARGV[1] then
  return 0
end
if redis.call('HGET', KEYS[1], 'state') == 'completed' then
  return -1
end
redis.call('DEL', KEYS[1])
return 1`)
)

// RedisTracker stores keys in Redis.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker builds a RedisTracker retaining keys for ttl.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

func (t *RedisTracker) Reserve(ctx context.Context, key, transactionID string) error {
	ok, err := reserveScript.Run(ctx, t.client, []string{keyPrefix + key}, transactionID, t.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok == 1 {
		return nil
	}

	rec, err := t.Lookup(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// expired between the two calls
		return t.Reserve(ctx, key, transactionID)
	}
	if err != nil {
		return err
	}
	return alreadyExists(key, rec)
}

func (t *RedisTracker) Complete(ctx context.Context, key, transactionID string, result []byte) error {
	ok, err := completeScript.Run(ctx, t.client, []string{keyPrefix + key}, transactionID, result, t.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if ok == 0 {
		return ErrNotOwner
	}
	return nil
}

func (t *RedisTracker) Release(ctx context.Context, key, transactionID string) error {
	ok, err := releaseScript.Run(ctx, t.client, []string{keyPrefix + key}, transactionID).Int()
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	switch ok {
	case 0:
		return ErrNotOwner
	case -1:
		return ErrCompleted
	}
	return nil
}

func (t *RedisTracker) Lookup(ctx context.Context, key string) (Record, error) {
	redisKey := keyPrefix + key
	pipe := t.client.Pipeline()
	fields := pipe.HGetAll(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Record{}, fmt.Errorf("lookup idempotency key: %w", err)
	}

	values := fields.Val()
	if len(values) == 0 {
		return Record{}, ErrNotFound
	}
	rec := Record{TransactionID: values["tx"], State: State(values["state"])}
	if result, ok := values["result"]; ok {
		rec.Result = []byte(result)
	}
	if remaining := ttl.Val(); remaining > 0 {
		rec.ExpiresAt = time.Now().Add(remaining).UTC()
	}
	return rec, nil
}
