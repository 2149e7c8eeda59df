// Package lock serialises deployment sessions that share a deployer account.
// Two sessions sending from the same address at once would race on nonces.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another session holds the lock.
var ErrLocked = errors.New("deployer is locked by another session")

// DefaultTTL bounds how long a crashed session can hold a lock.
const DefaultTTL = 10 * time.Minute

// Locker acquires exclusive deployment rights for a chain and deployer.
type Locker interface {
	// Acquire returns a release function, or ErrLocked.
	Acquire(ctx context.Context, chainID int64, deployer string) (release func(context.Context) error, err error)
}

// Key returns the lock key for a chain and deployer.
func Key(chainID int64, deployer string) string {
	return fmt.Sprintf("deployctl:lock:%d:%s", chainID, deployer)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a shared Redis.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker. A zero ttl uses DefaultTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Acquire takes the lock for chainID and deployer.
func (l *RedisLocker) Acquire(ctx context.Context, chainID int64, deployer string) (func(context.Context) error, error) {
	key := Key(chainID, deployer)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

// NopLocker grants every request. Used when no Redis is configured.
type NopLocker struct{}

// Acquire always succeeds.
func (NopLocker) Acquire(context.Context, int64, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = NopLocker{}
)
