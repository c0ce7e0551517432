package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript admits one request unless the counter has reached the
// ceiling. The INCR/DECR pair runs atomically inside the script, so a denied
// request leaves the observable count unchanged.
const incrementScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIREAT", KEYS[1], tonumber(ARGV[2]))
end
if current > tonumber(ARGV[1]) then
  redis.call("DECR", KEYS[1])
  return 0
end
return 1
`

const keyPrefix = "ratelimit:"

// RedisCounterStore is a CounterStore backed by a shared Redis instance,
// selectable as an alternative to the SQL store.
type RedisCounterStore struct {
	client    *redis.Client
	scriptSHA string
}

// NewRedisCounterStore verifies connectivity and loads the admission script.
func NewRedisCounterStore(client *redis.Client) (*RedisCounterStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, incrementScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load rate limit script: %w", err)
	}

	return &RedisCounterStore{client: client, scriptSHA: sha}, nil
}

// IncrementWindow implements CounterStore via the Lua admission script.
func (r *RedisCounterStore) IncrementWindow(ctx context.Context, key, bucket string, maxRequests int, _ time.Time, expiresAt time.Time) (bool, error) {
	if maxRequests <= 0 {
		return false, nil
	}

	redisKey := keyPrefix + key + ":" + bucket
	result, err := r.client.EvalSha(ctx, r.scriptSHA, []string{redisKey},
		maxRequests, expiresAt.Unix()).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit check: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}

	return allowed == 1, nil
}

// WindowCount implements CounterStore.
func (r *RedisCounterStore) WindowCount(ctx context.Context, key, bucket string) (int, error) {
	value, err := r.client.Get(ctx, keyPrefix+key+":"+bucket).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis rate limit count: %w", err)
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("redis rate limit count: %w", err)
	}
	return count, nil
}
