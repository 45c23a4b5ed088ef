package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "creditmint/pkg/domain-errors"
)

const (
	defaultTTL       = 60 * time.Second
	defaultRetry     = 50 * time.Millisecond
	defaultKeyPrefix = "creditmint:lock:"
)

// releaseScript deletes the key only if it still holds this holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's expiry only if it still holds this holder's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a Locker shared by every process pointing at the same Redis. While a hold is
// alive its expiry is renewed every TTL/3, so slow work under the lock keeps it; a crashed
// holder stops renewing and the key expires after one TTL.
type Redis struct {
	client redisClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a hold survives without release.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetryInterval sets how often a blocked Acquire retries.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

// WithKeyPrefix namespaces lock keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis returns a Locker backed by client.
func NewRedis(client redisClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultTTL,
		retry:  defaultRetry,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	k := r.prefix + key
	token := uuid.NewString()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, aborted(ctx.Err())
		case <-timer.C:
		}

		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, aborted(ctx.Err())
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInfrastructure, "lock backend unavailable")
		}
		if ok {
			return r.hold(k, token), nil
		}
		timer.Reset(r.retry)
	}
}

// hold keeps the key alive until the returned Release runs.
func (r *Redis) hold(key, token string) Release {
	renewCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(renewCtx, key, token)
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			stop()
			<-done
			err = r.release(ctx, key, token)
		})
		return err
	}
}

func (r *Redis) keepAlive(ctx context.Context, key, token string) {
	ticker := time.NewTicker(max(r.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
		if err != nil {
			// transient; the next tick retries before the hold can expire
			continue
		}
		if n == 0 {
			return
		}
	}
}

func (r *Redis) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInfrastructure, "lock release failed")
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
