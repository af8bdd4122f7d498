package mclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlock"
)

func newMiniredisClients(t *testing.T, n int) []redis.UniversalClient {
	t.Helper()
	clients := make([]redis.UniversalClient, n)
	for i := 0; i < n; i++ {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		clients[i] = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	return clients
}

func TestNew_RejectsFewerClientsThanQuorum(t *testing.T) {
	clients := newMiniredisClients(t, 1)
	_, err := New(clients, 3)
	assert.ErrorIs(t, err, merrors.ErrInvalidConfig)
}

func TestNew_RejectsPollingIntervalNotLessThanTimeout(t *testing.T) {
	clients := newMiniredisClients(t, 3)
	_, err := New(clients, 3, WithLockTimeout(time.Second), WithPollingInterval(time.Second))
	assert.ErrorIs(t, err, merrors.ErrInvalidConfig)
}

func TestNew_DerivesPollingIntervalFromTimeout(t *testing.T) {
	clients := newMiniredisClients(t, 3)
	c, err := New(clients, 3, WithLockTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.pollingInterval)
}

func TestClient_LockRegisterQueueShareOneCluster(t *testing.T) {
	clients := newMiniredisClients(t, 3)
	c, err := New(clients, 3, WithLockTimeout(time.Minute))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	lock, err := c.Lock()
	require.NoError(t, err)
	expireAt, err := lock.Lock(ctx, "path", mlock.ExtendDisabled)
	require.NoError(t, err)
	assert.Greater(t, expireAt, time.Now().Unix())
	lock.Unlock(ctx, "path")

	ok, err := c.Register().Set(ctx, "key", "value")
	require.NoError(t, err)
	assert.True(t, ok)

	queue, err := c.Queue()
	require.NoError(t, err)
	fraction := queue.Put(ctx, "item", 0)
	assert.Equal(t, 1.0, fraction)
}

func TestClient_ClientIDIsStableAcrossCalls(t *testing.T) {
	clients := newMiniredisClients(t, 3)
	c, err := New(clients, 3)
	require.NoError(t, err)
	defer c.Close()

	id1 := c.ClientID()
	id2 := c.ClientID()
	assert.Equal(t, id1, id2)
}
