package mqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlease"
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

func TestQueue_PutGetConsumeLifecycle(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	fraction := q.Put(ctx, "item-1", 0)
	assert.Equal(t, 1.0, fraction)

	item, handle, err := q.Get(ctx, ExtendDisabled, true)
	require.NoError(t, err)
	assert.Equal(t, "item-1", item)
	assert.NotEmpty(t, handle)

	confirmed, err := q.Consume(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, 1.0, confirmed)
}

func TestQueue_GetOnEmptyQueueReportsQueueEmpty(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil))
	require.NoError(t, err)

	_, _, err = q.Get(context.Background(), ExtendDisabled, true)
	assert.True(t, merrors.IsLogicalError(err, merrors.LogicalQueueEmpty))
}

func TestQueue_PriorityOrdersBeforeInsertTime(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	q.Put(ctx, "low-priority", 10)
	q.Put(ctx, "high-priority", 0)

	item, _, err := q.Get(ctx, ExtendDisabled, true)
	require.NoError(t, err)
	assert.Equal(t, "high-priority", item)
}

func TestQueue_SecondGetSeesNextItem(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	q.Put(ctx, "first", 0)
	q.Put(ctx, "second", 1)

	item1, handle1, err := q.Get(ctx, ExtendDisabled, true)
	require.NoError(t, err)
	assert.Equal(t, "first", item1)

	item2, handle2, err := q.Get(ctx, ExtendDisabled, true)
	require.NoError(t, err)
	assert.Equal(t, "second", item2)
	assert.NotEqual(t, handle1, handle2)
}

func TestQueue_ConsumeTwiceIsIdempotent(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	q.Put(ctx, "item", 0)
	_, handle, err := q.Get(ctx, ExtendDisabled, true)
	require.NoError(t, err)

	_, err = q.Consume(ctx, handle)
	require.NoError(t, err)

	confirmed, err := q.Consume(ctx, handle)
	require.NoError(t, err)
	assert.Greater(t, confirmed, 0.0)
}

func TestQueue_SizeReportsQueuedCount(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil), WithTimeout(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()
	q.Put(ctx, "a", 0)
	q.Put(ctx, "b", 0)

	n, err := q.Size(ctx, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueue_SizeRejectsNeitherFlag(t *testing.T) {
	servers := newMiniredisCluster(t, 3)
	q, err := New(servers, 3, 1, "Q", mlease.NewRegistry(nil))
	require.NoError(t, err)

	_, err = q.Size(context.Background(), false, false)
	assert.ErrorIs(t, err, merrors.ErrInvalidConfig)
}
