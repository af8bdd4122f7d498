package mscript

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
)

func newMiniredisServers(t *testing.T, n int) []Server {
	t.Helper()
	servers := make([]Server, n)
	for i := 0; i < n; i++ {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		servers[i] = Server{
			ID:     mr.Addr(),
			Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		}
	}
	return servers
}

var echoScripts = map[string]*redis.Script{
	"set": redis.NewScript(`redis.call('SET', KEYS[1], ARGV[1]); return 'OK'`),
	"get": redis.NewScript(`return redis.call('GET', KEYS[1])`),
	"err": redis.NewScript(`return redis.error_reply('already locked: nope')`),
}

func TestRunner_RunSucceedsAcrossAllServers(t *testing.T) {
	servers := newMiniredisServers(t, 3)
	r := NewRunner(echoScripts)
	ctx := context.Background()

	setResults := r.Run(ctx, "set", servers, []string{"k"}, []interface{}{"v"})
	for _, res := range setResults {
		assert.True(t, res.Succeeded())
		assert.Equal(t, "OK", res.Value)
	}

	getResults := r.Run(ctx, "get", servers, []string{"k"}, nil)
	for _, res := range getResults {
		require.True(t, res.Succeeded())
		assert.Equal(t, "v", res.Value)
	}
}

func TestRunner_UnknownScriptErrorsEveryServer(t *testing.T) {
	servers := newMiniredisServers(t, 2)
	r := NewRunner(echoScripts)

	results := r.Run(context.Background(), "nope", servers, nil, nil)
	require.Len(t, results, len(servers))
	for _, res := range results {
		assert.False(t, res.Succeeded())
	}
}

func TestRunner_LogicalErrorSurfacedAsLogicalError(t *testing.T) {
	servers := newMiniredisServers(t, 1)
	r := NewRunner(echoScripts)

	results := r.Run(context.Background(), "err", servers, nil, nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded())
	assert.True(t, merrors.IsLogicalError(results[0].Err, merrors.LogicalAlreadyLocked))
}

func TestRunner_UnreachableServerReportsTransportError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close() // closed before use: connection should fail

	servers := []Server{{ID: addr, Client: redis.NewClient(&redis.Options{Addr: addr})}}
	r := NewRunner(echoScripts)

	results := r.Run(context.Background(), "get", servers, []string{"k"}, nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded())
}

func TestRunner_SerialMapperMatchesParallelMapper(t *testing.T) {
	servers := newMiniredisServers(t, 3)
	r := NewRunner(echoScripts, WithMapper(SerialMapper{}))

	results := r.Run(context.Background(), "set", servers, []string{"k"}, []interface{}{"v"})
	assert.Len(t, results, 3)
	for _, res := range results {
		assert.True(t, res.Succeeded())
	}
}
