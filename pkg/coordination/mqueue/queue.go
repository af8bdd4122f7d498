// Package mqueue implements LockingQueue: a priority-ordered
// distributed work queue where each item's lifecycle threads a
// MajorityLock-like lease through the queue-item key h_k.
package mqueue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlease"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mquorum"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

// Completed and Failed are ExtendLock's non-expiry return codes, matching
// the source API's `extend_lock(h_k) -> expireat | 0 | -1` contract.
const (
	Completed int64 = -1
	Failed    int64 = 0
)

// ExtendMode mirrors mlock.ExtendMode: a tagged variant standing in for
// the bool|callback `extend` parameter.
type ExtendMode struct {
	enabled        bool
	failureHandler mlease.FailureHandler
}

var ExtendDisabled = ExtendMode{}
var ExtendEnabled = ExtendMode{enabled: true}

func ExtendEnabledWithFailureHandler(fn mlease.FailureHandler) ExtendMode {
	return ExtendMode{enabled: true, failureHandler: fn}
}

// Queue implements the LockingQueue primitive over a fixed cluster and a
// single queue key.
type Queue struct {
	runner     *mscript.Runner
	servers    []mscript.Server
	nServers   int
	clientID   int64
	queueKey   string
	timeout    time.Duration
	pollInt    time.Duration
	clockDrift time.Duration
	leases     *mlease.Registry
}

// Option configures a Queue.
type Option func(*queueConfig)

type queueConfig struct {
	timeout    time.Duration
	pollInt    time.Duration
	clockDrift time.Duration
	logger     mscript.Logger
	tracerProv trace.TracerProvider
	meterProv  metric.MeterProvider
}

func WithTimeout(d time.Duration) Option         { return func(c *queueConfig) { c.timeout = d } }
func WithPollingInterval(d time.Duration) Option { return func(c *queueConfig) { c.pollInt = d } }
func WithClockDrift(d time.Duration) Option      { return func(c *queueConfig) { c.clockDrift = d } }
func WithLogger(lg mscript.Logger) Option        { return func(c *queueConfig) { c.logger = lg } }

// WithTracerProvider attaches an OpenTelemetry TracerProvider used for
// every underlying script call. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *queueConfig) { c.tracerProv = tp }
}

// WithMeterProvider attaches an OpenTelemetry MeterProvider used to record
// call counts and latency. Defaults to nil (no metrics).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *queueConfig) { c.meterProv = mp }
}

// New constructs a Queue. queueKey names the ordered-set key Q.
func New(servers []mscript.Server, nServers int, clientID int64, queueKey string, leases *mlease.Registry, opts ...Option) (*Queue, error) {
	cfg := &queueConfig{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pollInt == 0 {
		cfg.pollInt = cfg.timeout / 5
	}
	if cfg.pollInt >= cfg.timeout {
		return nil, merrors.ErrInvalidConfig
	}

	var runnerOpts []mscript.Option
	if cfg.logger != nil {
		runnerOpts = append(runnerOpts, mscript.WithLogger(cfg.logger))
	}
	if cfg.tracerProv != nil {
		runnerOpts = append(runnerOpts, mscript.WithTracerProvider(cfg.tracerProv))
	}
	if cfg.meterProv != nil {
		runnerOpts = append(runnerOpts, mscript.WithMeterProvider(cfg.meterProv))
	}

	return &Queue{
		runner:     mscript.NewRunner(newScripts(), runnerOpts...),
		servers:    servers,
		nServers:   nServers,
		clientID:   clientID,
		queueKey:   queueKey,
		timeout:    cfg.timeout,
		pollInt:    cfg.pollInt,
		clockDrift: cfg.clockDrift,
		leases:     leases,
	}, nil
}

func (q *Queue) secsLeft(expireAt int64) float64 {
	now := float64(time.Now().Unix())
	return float64(expireAt) - now - q.clockDrift.Seconds() - q.pollInt.Seconds()
}

// Put enqueues item at priority (smaller = earlier) and returns the
// fraction of servers that accepted the addition. There is no majority
// requirement: the same h_k added twice is idempotent within the ordered
// set, so duplicate or partial enqueues are benign.
func (q *Queue) Put(ctx context.Context, item string, priority int) float64 {
	h := newHandle(priority, nowFloat(), item)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	wg.Add(len(q.servers))
	for _, s := range q.servers {
		go func(s mscript.Server) {
			defer wg.Done()
			if err := s.Client.ZAddNX(ctx, q.queueKey, redisZ(string(h), 0)).Err(); err != nil {
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	if len(q.servers) == 0 {
		return 0
	}
	return float64(accepted) / float64(len(q.servers))
}

// candidate is one server's claim on an item during Get's first step.
type candidate struct {
	server mscript.Server
	handle Handle
}

// Get dequeues the next available item. When checkAllServers is true every
// server is queried for a candidate and the first success wins, with
// best-effort unlock cleanup on every other candidate server; when false,
// a single random server is queried.
func (q *Queue) Get(ctx context.Context, extend ExtendMode, checkAllServers bool) (string, Handle, error) {
	expireAt := time.Now().Add(q.timeout).Unix()

	probeServers := q.servers
	if !checkAllServers {
		probeServers = []mscript.Server{q.servers[rand.Intn(len(q.servers))]}
	}

	results := q.runner.Run(ctx, scriptGet, probeServers, []string{q.queueKey}, []interface{}{q.clientID, expireAt})

	var winner *candidate
	losers := make([]candidate, 0, len(results))
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		h := Handle(toString(r.Value))
		c := candidate{server: r.Server, handle: h}
		if winner == nil {
			winner = &c
		} else {
			losers = append(losers, c)
		}
	}
	if winner == nil {
		return "", "", merrors.NewLogicalError(merrors.LogicalQueueEmpty)
	}

	for _, l := range losers {
		q.runner.Run(ctx, scriptUnlock, []mscript.Server{l.server}, []string{string(l.handle)}, []interface{}{q.clientID})
	}

	remaining := make([]mscript.Server, 0, len(q.servers)-1)
	for _, s := range q.servers {
		if s.ID == winner.server.ID {
			continue
		}
		remaining = append(remaining, s)
	}

	lockResults := q.runner.Run(ctx, scriptLock, remaining, []string{string(winner.handle), q.queueKey}, []interface{}{expireAt, mscript.Randint{}, q.clientID})

	if mquorum.AnyCompleted(lockResults) {
		q.propagateCompletion(ctx, winner.handle, lockResults)
		return "", "", merrors.NewLogicalError(merrors.LogicalAlreadyCompleted)
	}

	successes := mquorum.CountMatching(lockResults, func(r mscript.ServerResult) bool {
		n, ok := r.Value.(int64)
		return ok && n == 1
	})
	successes++ // the winning server's own lq_get success counts implicitly

	if successes < mquorum.Quorum(q.nServers) {
		q.unlockAll(ctx, winner.handle, append(successfulServers(lockResults), winner.server))
		return "", "", merrors.ErrNoMajority
	}

	if q.secsLeft(expireAt) <= 0 {
		q.unlockAll(ctx, winner.handle, append(successfulServers(lockResults), winner.server))
		return "", "", merrors.ErrCannotObtainLock
	}

	_, _, item, err := winner.handle.Parse()
	if err != nil {
		return "", "", err
	}

	if extend.enabled && q.leases != nil {
		dedupKey := "mqueue:" + q.queueKey + ":" + string(winner.handle)
		q.leases.StartOrSkip(context.Background(), dedupKey, string(winner.handle), q.extendFunc(), q.pollInt, extend.failureHandler)
	}

	return item, winner.handle, nil
}

func successfulServers(results []mscript.ServerResult) []mscript.Server {
	out := make([]mscript.Server, 0, len(results))
	for _, r := range results {
		if n, ok := r.Value.(int64); ok && n == 1 {
			out = append(out, r.Server)
		}
	}
	return out
}

func (q *Queue) unlockAll(ctx context.Context, h Handle, servers []mscript.Server) {
	if len(servers) == 0 {
		return
	}
	q.runner.Run(ctx, scriptUnlock, servers, []string{string(h)}, []interface{}{q.clientID})
}

// propagateCompletion fires lq_consume at every server that did not
// already report "already completed", so the terminal marker spreads to
// the rest of the cluster.
func (q *Queue) propagateCompletion(ctx context.Context, h Handle, results []mscript.ServerResult) {
	targets := make([]mscript.Server, 0, len(results))
	for _, r := range results {
		if !merrors.IsLogicalError(r.Err, merrors.LogicalAlreadyCompleted) {
			targets = append(targets, r.Server)
		}
	}
	if len(targets) == 0 {
		return
	}
	q.runner.Run(ctx, scriptConsume, targets, []string{string(h), q.queueKey}, []interface{}{q.clientID})
}

// ExtendLock renews the lease on h. It returns Completed (-1) if any
// server reports the item terminal, Failed (0) if quorum could not be
// re-established, or the new expiry otherwise. Servers that reported
// "expired" are re-locked to rejoin quorum.
func (q *Queue) ExtendLock(ctx context.Context, h Handle) (int64, error) {
	expireAt := time.Now().Add(q.timeout).Unix()
	results := q.runner.Run(ctx, scriptExtend, q.servers, []string{string(h)}, []interface{}{expireAt, q.clientID})

	if mquorum.AnyCompleted(results) {
		return Completed, merrors.NewLogicalError(merrors.LogicalAlreadyCompleted)
	}

	extended := mquorum.CountMatching(results, func(r mscript.ServerResult) bool {
		n, ok := r.Value.(int64)
		return ok && n == 1
	})
	if extended < mquorum.Quorum(q.nServers) {
		return Failed, merrors.ErrNoMajority
	}

	expired := mquorum.Failing(results, merrors.LogicalExpired)
	if len(expired) > 0 {
		targets := make([]mscript.Server, 0, len(expired))
		for _, r := range expired {
			targets = append(targets, r.Server)
		}
		q.runner.Run(ctx, scriptLock, targets, []string{string(h), q.queueKey}, []interface{}{expireAt, mscript.Randint{}, q.clientID})
	}

	if q.secsLeft(expireAt) <= 0 {
		return Failed, merrors.ErrCannotObtainLock
	}
	return expireAt, nil
}

func (q *Queue) extendFunc() mlease.ExtendFunc {
	return func(ctx context.Context, h string) mlease.ExtendResult {
		expireAt, err := q.ExtendLock(ctx, Handle(h))
		switch {
		case err != nil && expireAt == Completed:
			return mlease.ExtendResult{Outcome: mlease.Completed}
		case err != nil:
			return mlease.ExtendResult{Outcome: mlease.Failed}
		default:
			return mlease.ExtendResult{Outcome: mlease.Extended, SecondsLeft: q.secsLeft(expireAt)}
		}
	}
}

// Consume marks h as terminally completed. It is idempotent: calling it
// again after success still returns a positive percent. It fails only if
// zero servers confirm.
func (q *Queue) Consume(ctx context.Context, h Handle) (float64, error) {
	results := q.runner.Run(ctx, scriptConsume, q.servers, []string{string(h), q.queueKey}, []interface{}{q.clientID})
	confirmed := mquorum.CountMatching(results, func(r mscript.ServerResult) bool {
		n, ok := r.Value.(int64)
		return ok && n == 1
	})
	if q.leases != nil {
		q.leases.Stop("mqueue:" + q.queueKey + ":" + string(h))
	}
	if confirmed == 0 {
		return 0, merrors.ErrConsumeFailed
	}
	return float64(confirmed) / float64(len(q.servers)), nil
}

// Size reports the approximate queue length across servers.
// Requesting both queued and taken is O(1) per server (ZCARD); requesting only
// one is O(n) because it runs lq_qsize.
func (q *Queue) Size(ctx context.Context, queued, taken bool) (int64, error) {
	if !queued && !taken {
		return 0, merrors.ErrInvalidConfig
	}
	if queued && taken {
		var mu sync.Mutex
		var wg sync.WaitGroup
		max := int64(0)
		wg.Add(len(q.servers))
		for _, s := range q.servers {
			go func(s mscript.Server) {
				defer wg.Done()
				n, err := s.Client.ZCard(ctx, q.queueKey).Result()
				if err != nil {
					return
				}
				mu.Lock()
				if n > max {
					max = n
				}
				mu.Unlock()
			}(s)
		}
		wg.Wait()
		return max, nil
	}

	results := q.runner.Run(ctx, scriptQSize, q.servers, []string{q.queueKey}, nil)
	var max int64
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		arr, ok := r.Value.([]interface{})
		if !ok || len(arr) != 2 {
			continue
		}
		takenCount := toInt64(arr[0])
		queuedCount := toInt64(arr[1])
		var n int64
		if taken {
			n = takenCount
		} else {
			n = queuedCount
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}
