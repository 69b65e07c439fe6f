package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "freshbasket:otp:"
	redisCallTimeout = 5 * time.Second
)

// reserveAttemptScript increments the attempt counter that lives next to the
// challenge and returns the challenge with the new count. The counter expires
// with the challenge. Returns nil when no challenge is stored.
var reserveAttemptScript = redis.NewScript(`
local challenge = redis.call("GET", KEYS[1])
if not challenge then
	return false
end
local attempts = tonumber(redis.call("GET", KEYS[2]) or "0")
if attempts >= tonumber(ARGV[1]) then
	return {challenge, attempts, 0}
end
attempts = redis.call("INCR", KEYS[2])
if attempts == 1 then
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl > 0 then
		redis.call("PEXPIRE", KEYS[2], ttl)
	end
end
return {challenge, attempts, 1}
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, connectionString string) (*RedisStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w (and failed to close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Set replaces the challenge and resets its attempt counter.
func (r *RedisStore) Set(ctx context.Context, key string, challenge *Challenge, ttl time.Duration) error {
	val, err := json.Marshal(challenge)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisOTPKey(key), val, ttl)
		pipe.Del(ctx, redisAttemptsKey(key))
		return nil
	})
	return err
}

func (r *RedisStore) ReserveAttempt(ctx context.Context, key string, limit int) (*Challenge, error) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	keys := []string{redisOTPKey(key), redisAttemptsKey(key)}
	res, err := reserveAttemptScript.Run(ctx, r.client, keys, limit).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected otp reservation reply: %v", res)
	}

	raw, _ := res[0].(string)
	attempts, _ := res[1].(int64)
	reserved, _ := res[2].(int64)
	if reserved == 0 {
		return nil, ErrTooManyAttempts
	}

	var challenge Challenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode otp challenge: %w", err)
	}
	challenge.Attempts = int(attempts)
	return &challenge, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	return r.client.Del(ctx, redisOTPKey(key), redisAttemptsKey(key)).Err()
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisOTPKey(key string) string {
	return redisKeyPrefix + key
}

func redisAttemptsKey(key string) string {
	return redisKeyPrefix + key + ":attempts"
}
