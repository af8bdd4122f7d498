// Package mlease implements a background task that repeatedly extends a
// lease until it fails or the underlying key is reported complete. The
// auto-reschedule loop is grounded on xsemaphore's permit.go auto-extend
// pattern (ticker/timer plus a stop channel), generalized to a three-way
// ExtendFunc outcome and to an injected Scheduler rather than a hardcoded
// ticker, so tests can substitute a synchronous fake clock.
package mlease

import (
	"context"
	"time"
)

// Outcome is the tri-state result of a single extend attempt.
type Outcome int

const (
	// Failed means the extend attempt could not re-establish the lease
	// (e.g. lost quorum, or the key expired on a majority of servers).
	Failed Outcome = iota
	// Completed means the underlying item reached its terminal state; the
	// keeper should stop silently, this is not an error.
	Completed
	// Extended means the lease was renewed; SecondsLeft reports how long
	// until it must be renewed again.
	Extended
)

// ExtendResult is what an ExtendFunc reports for one attempt.
type ExtendResult struct {
	Outcome     Outcome
	SecondsLeft float64
}

// ExtendFunc attempts to renew the lease held at key once.
type ExtendFunc func(ctx context.Context, key string) ExtendResult

// FailureHandler is invoked once, after the final failed extend attempt.
type FailureHandler func(key string)

// Scheduler is the injected delayed-task-spawner dependency used to
// reschedule the next extend attempt. The default implementation uses
// time.AfterFunc; tests can substitute an immediate or virtual-clock
// scheduler.
type Scheduler interface {
	SpawnAfter(delay time.Duration, fn func())
}

// RealScheduler schedules fn on Go's runtime timer wheel.
type RealScheduler struct{}

func (RealScheduler) SpawnAfter(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

// Keeper drives one lease's extend loop.
type Keeper struct {
	key             string
	extend          ExtendFunc
	pollingInterval time.Duration
	onFail          FailureHandler
	onStop          func()
	scheduler       Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

func newKeeper(ctx context.Context, key string, extend ExtendFunc, pollingInterval time.Duration, onFail FailureHandler, onStop func(), sched Scheduler) *Keeper {
	kctx, cancel := context.WithCancel(ctx)
	return &Keeper{
		key:             key,
		extend:          extend,
		pollingInterval: pollingInterval,
		onFail:          onFail,
		onStop:          onStop,
		scheduler:       sched,
		ctx:             kctx,
		cancel:          cancel,
	}
}

// Stop cancels the keeper early; in-flight extend calls observe ctx.Done().
func (k *Keeper) Stop() {
	k.cancel()
	if k.onStop != nil {
		k.onStop()
	}
}

func (k *Keeper) run() {
	if k.ctx.Err() != nil {
		return
	}
	result := k.extend(k.ctx, k.key)
	switch result.Outcome {
	case Completed:
		if k.onStop != nil {
			k.onStop()
		}
		return
	case Failed:
		if k.onFail != nil {
			k.onFail(k.key)
		}
		if k.onStop != nil {
			k.onStop()
		}
		return
	case Extended:
		delay := result.SecondsLeft - k.pollingInterval.Seconds()
		if delay < 0 {
			delay = 0
		}
		if delay > k.pollingInterval.Seconds() {
			delay = k.pollingInterval.Seconds()
		}
		k.scheduler.SpawnAfter(time.Duration(delay*float64(time.Second)), k.run)
	}
}
