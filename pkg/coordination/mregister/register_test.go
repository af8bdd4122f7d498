package mregister

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

func newMiniredisCluster(t *testing.T, n int) []mscript.Server {
	t.Helper()
	servers := make([]mscript.Server, n)
	for i := 0; i < n; i++ {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		servers[i] = mscript.Server{
			ID:     mr.Addr(),
			Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		}
	}
	return servers
}

func TestRegister_SetThenGet(t *testing.T) {
	reg := New(newMiniredisCluster(t, 3), 3)
	ctx := context.Background()

	ok, err := reg.Set(ctx, "path", "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	val, err := reg.Get(ctx, "path")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestRegister_SecondSetWinsOnNewerTimestamp(t *testing.T) {
	reg := New(newMiniredisCluster(t, 3), 3)
	ctx := context.Background()

	ok, err := reg.Set(ctx, "path", "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(2 * time.Millisecond)
	ok, err = reg.Set(ctx, "path", "v2")
	require.NoError(t, err)
	assert.True(t, ok)

	val, err := reg.Get(ctx, "path")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}

func TestRegister_ExistsReflectsWrites(t *testing.T) {
	reg := New(newMiniredisCluster(t, 3), 3)
	ctx := context.Background()

	exists, err := reg.Exists(ctx, "never-set")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = reg.Set(ctx, "path", "v1")
	require.NoError(t, err)

	exists, err = reg.Exists(ctx, "path")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRegister_TTLDefaultsToPersistent(t *testing.T) {
	reg := New(newMiniredisCluster(t, 3), 3)
	ctx := context.Background()

	_, err := reg.Set(ctx, "path", "v1")
	require.NoError(t, err)

	ttl, err := reg.TTL(ctx, "path")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)
}

func TestRegister_GetOnUnwrittenKeyReportsNoMajority(t *testing.T) {
	reg := New(newMiniredisCluster(t, 3), 3)
	val, err := reg.Get(context.Background(), "never-set")
	assert.ErrorIs(t, err, merrors.ErrNoMajority)
	assert.Equal(t, "", val)
}
