package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t,
		"deployctl:lock:1337:0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Key(1337, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
}

func TestNopLocker(t *testing.T) {
	release, err := NopLocker{}.Acquire(context.Background(), 1, "0x0")
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}

func TestRedisLocker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	locker := NewRedisLocker(client, 0)
	assert.Equal(t, DefaultTTL, locker.ttl)

	_, err := locker.Acquire(context.Background(), 1337, "0xabc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
