package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis defaults
const (
	DefaultTTL          = 30 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultPrefix       = "erp-invoicer:lock:"
)

// Redis is a Locker shared by every instance talking to the same Redis
type Redis struct {
	client       *redis.Client
	script       *redis.Script
	ttl          time.Duration
	pollInterval time.Duration
	prefix       string
}

// RedisOption configures a Redis locker
type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can keep a key locked
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPollInterval sets how often a waiter retries
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithPrefix namespaces lock keys
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis-backed locker
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:       client,
		script:       redis.NewScript(releaseScript),
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		prefix:       DefaultPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryAcquire makes one attempt and returns the owner token on success
func (r *Redis) TryAcquire(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire implements Locker
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		token, ok, err := r.TryAcquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.releaser(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) releaser(key, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.script.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
		})
	}
}
