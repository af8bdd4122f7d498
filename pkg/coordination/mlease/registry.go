package mlease

import (
	"context"
	"sync"
	"time"
)

// Registry is the process-wide set that suppresses duplicate keepers for
// the same logical lease. A Keeper holds only the minimal closure (key,
// extend_fn, polling_interval, callback) and never a reference back to the
// primitive that spawned it. Because Go funcs are not comparable, dedup is
// keyed by a caller-supplied dedupKey string (typically
// "<primitive>:<path>") rather than by comparing the ExtendFunc/callback
// values themselves.
type Registry struct {
	mu        sync.Mutex
	keepers   map[string]*Keeper
	scheduler Scheduler
}

// NewRegistry constructs a Registry using the given Scheduler for every
// keeper it starts. A nil scheduler defaults to RealScheduler.
func NewRegistry(sched Scheduler) *Registry {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Registry{keepers: make(map[string]*Keeper), scheduler: sched}
}

// StartOrSkip starts a new Keeper for dedupKey unless one is already
// running, in which case it is a no-op and returns false.
func (r *Registry) StartOrSkip(ctx context.Context, dedupKey, key string, extend ExtendFunc, pollingInterval time.Duration, onFail FailureHandler) bool {
	r.mu.Lock()
	if _, exists := r.keepers[dedupKey]; exists {
		r.mu.Unlock()
		return false
	}
	k := newKeeper(ctx, key, extend, pollingInterval, onFail, func() { r.remove(dedupKey) }, r.scheduler)
	r.keepers[dedupKey] = k
	r.mu.Unlock()

	k.scheduler.SpawnAfter(0, k.run)
	return true
}

func (r *Registry) remove(dedupKey string) {
	r.mu.Lock()
	delete(r.keepers, dedupKey)
	r.mu.Unlock()
}

// Stop cancels the keeper registered under dedupKey, if any, and removes
// it from the registry.
func (r *Registry) Stop(dedupKey string) {
	r.mu.Lock()
	k, ok := r.keepers[dedupKey]
	delete(r.keepers, dedupKey)
	r.mu.Unlock()
	if ok {
		k.Stop()
	}
}

// StopAll cancels every running keeper. Intended for client shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	keepers := make([]*Keeper, 0, len(r.keepers))
	for k := range r.keepers {
		keepers = append(keepers, r.keepers[k])
	}
	r.keepers = make(map[string]*Keeper)
	r.mu.Unlock()
	for _, k := range keepers {
		k.Stop()
	}
}
