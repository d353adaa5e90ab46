package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()

	client, err := New(context.Background(), &config.Config{
		Redis: config.RedisConfig{Enabled: true, Host: host, Port: port},
	})
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.Enabled())
}

func TestStageLocker_AcquireRelease(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewStageLocker(client, "dva", time.Minute)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "generate")
	require.NoError(t, err)
	assert.True(t, mr.Exists("dva:lock:generate"))
	assert.Equal(t, time.Minute, mr.TTL("dva:lock:generate"))

	_, err = locker.Acquire(ctx, "generate")
	assert.True(t, errors.Is(err, ErrLockHeld))

	// 다른 스테이지는 독립
	other, err := locker.Acquire(ctx, "validate")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("dva:lock:generate"))

	_, err = locker.Acquire(ctx, "generate")
	assert.NoError(t, err)
}

func TestStageLocker_ReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewStageLocker(client, "dva", time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "optimize")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "optimize")
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("dva:lock:optimize"))

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists("dva:lock:optimize"))
}

func TestStageLocker_Disabled(t *testing.T) {
	locker := NewStageLocker(&Client{}, "dva", time.Minute)

	lock, err := locker.Acquire(context.Background(), "validate")
	require.NoError(t, err)
	assert.NoError(t, lock.Release(context.Background()))
}
