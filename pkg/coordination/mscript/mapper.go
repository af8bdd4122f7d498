package mscript

import (
	"context"
	"sync"
)

// Mapper is the injected parallel-fan-out dependency used to run a script
// call against every server concurrently. Implementations must invoke fn
// exactly once per item and may return results in any order; the quorum
// core tolerates any interleaving.
type Mapper interface {
	Map(ctx context.Context, fn func(item interface{}) interface{}, items []interface{}) []interface{}
}

// ParallelMapper runs fn concurrently, one goroutine per item. It is the
// default Mapper: every coordination primitive fans out to all servers at
// once rather than waiting on them serially.
type ParallelMapper struct{}

func (ParallelMapper) Map(ctx context.Context, fn func(item interface{}) interface{}, items []interface{}) []interface{} {
	out := make([]interface{}, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		go func(i int, item interface{}) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					var server Server
					if s, ok := item.(Server); ok {
						server = s
					}
					out[i] = ServerResult{Server: server, Err: panicToError(p)}
				}
			}()
			out[i] = fn(item)
		}(i, item)
	}
	wg.Wait()
	return out
}

// SerialMapper runs fn once per item, in order, on the calling goroutine.
// Useful for deterministic tests and for clusters small enough that
// parallelism isn't worth the goroutine overhead.
type SerialMapper struct{}

func (SerialMapper) Map(_ context.Context, fn func(item interface{}) interface{}, items []interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
