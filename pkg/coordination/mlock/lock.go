// Package mlock implements MajorityLock: a named mutual-exclusion
// lock fenced by a client identifier, with Redlock-style time-bound leases
// validated against clock drift and polling interval.
package mlock

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlease"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mquorum"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

// ExtendMode is the tagged variant replacing the bool|callback
// `extend_lock` parameter from the source API.
type ExtendMode struct {
	enabled        bool
	failureHandler mlease.FailureHandler
}

// ExtendDisabled means Lock does not spawn a LeaseKeeper.
var ExtendDisabled = ExtendMode{}

// ExtendEnabled spawns a LeaseKeeper with no failure callback.
var ExtendEnabled = ExtendMode{enabled: true}

// ExtendEnabledWithFailureHandler spawns a LeaseKeeper that invokes fn if
// extension ultimately fails.
func ExtendEnabledWithFailureHandler(fn mlease.FailureHandler) ExtendMode {
	return ExtendMode{enabled: true, failureHandler: fn}
}

// FAILED is the sentinel zero value returned by Lock/ExtendLock on failure,
// matching the source API's `expireat | FAILED` contract.
const FAILED int64 = 0

// Lock implements the MajorityLock primitive over a fixed cluster.
type Lock struct {
	runner     *mscript.Runner
	servers    []mscript.Server
	nServers   int
	clientID   int64
	timeout    time.Duration
	pollInt    time.Duration
	clockDrift time.Duration
	leases     *mlease.Registry
	logger     mscript.Logger
	tracerProv trace.TracerProvider
	meterProv  metric.MeterProvider
}

// Option configures a Lock.
type Option func(*Lock)

// WithTimeout sets the lease duration. Default 30s.
func WithTimeout(d time.Duration) Option { return func(l *Lock) { l.timeout = d } }

// WithPollingInterval sets the lease-keeper polling interval. Must be
// strictly less than the timeout. Default timeout/5.
func WithPollingInterval(d time.Duration) Option { return func(l *Lock) { l.pollInt = d } }

// WithClockDrift sets the assumed maximum clock drift across servers.
// Default 0.
func WithClockDrift(d time.Duration) Option { return func(l *Lock) { l.clockDrift = d } }

// WithLogger attaches a diagnostic logger.
func WithLogger(lg mscript.Logger) Option { return func(l *Lock) { l.logger = lg } }

// WithTracerProvider attaches an OpenTelemetry TracerProvider used for
// every underlying script call. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(l *Lock) { l.tracerProv = tp } }

// WithMeterProvider attaches an OpenTelemetry MeterProvider used to record
// call counts and latency. Defaults to nil (no metrics).
func WithMeterProvider(mp metric.MeterProvider) Option { return func(l *Lock) { l.meterProv = mp } }

// New constructs a Lock. servers must number at least quorum(nServers);
// nServers is the declared cluster size, which may exceed len(servers) if
// some servers are currently unreachable but still counted toward quorum
// arithmetic.
func New(servers []mscript.Server, nServers int, clientID int64, leases *mlease.Registry, opts ...Option) (*Lock, error) {
	if len(servers) < mquorum.Quorum(nServers) {
		return nil, fmt.Errorf("%w: %d servers cannot reach quorum of %d", merrors.ErrCannotObtainLock, len(servers), mquorum.Quorum(nServers))
	}
	l := &Lock{
		runner:   mscript.NewRunner(newScripts()),
		servers:  servers,
		nServers: nServers,
		clientID: clientID,
		timeout:  30 * time.Second,
		leases:   leases,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pollInt == 0 {
		l.pollInt = l.timeout / 5
	}
	if l.pollInt >= l.timeout {
		return nil, fmt.Errorf("%w: polling_interval must be less than timeout", merrors.ErrInvalidConfig)
	}
	var runnerOpts []mscript.Option
	if l.logger != nil {
		runnerOpts = append(runnerOpts, mscript.WithLogger(l.logger))
	}
	if l.tracerProv != nil {
		runnerOpts = append(runnerOpts, mscript.WithTracerProvider(l.tracerProv))
	}
	if l.meterProv != nil {
		runnerOpts = append(runnerOpts, mscript.WithMeterProvider(l.meterProv))
	}
	if len(runnerOpts) > 0 {
		l.runner = mscript.NewRunner(newScripts(), runnerOpts...)
	}
	return l, nil
}

func (l *Lock) secsLeft(expireAt int64) float64 {
	now := float64(time.Now().Unix())
	return float64(expireAt) - now - l.clockDrift.Seconds() - l.pollInt.Seconds()
}

// Lock attempts to acquire path. On success it returns the absolute
// expiry (Unix seconds); on failure it returns FAILED and releases any
// partial majority it managed to claim.
func (l *Lock) Lock(ctx context.Context, path string, extend ExtendMode) (int64, error) {
	expireAt := time.Now().Add(l.timeout).Unix()

	results := l.runner.Run(ctx, scriptLock, l.servers, []string{path}, []interface{}{l.clientID, expireAt})

	won := mquorum.Succeeding(results)
	acquired := 0
	for _, r := range won {
		if n, ok := r.Value.(int64); ok && n == 1 {
			acquired++
		}
	}

	if acquired < mquorum.Quorum(l.nServers) {
		l.releasePartial(ctx, path, results)
		return FAILED, merrors.ErrNoMajority
	}

	if l.secsLeft(expireAt) <= 0 {
		l.releasePartial(ctx, path, results)
		return FAILED, merrors.ErrCannotObtainLock
	}

	if extend.enabled && l.leases != nil {
		dedupKey := "mlock:" + path
		l.leases.StartOrSkip(context.Background(), dedupKey, path, l.extendFunc(), l.pollInt, extend.failureHandler)
	}

	return expireAt, nil
}

// releasePartial unlocks every server that reported a successful lock
// acquisition, used when the overall attempt did not reach quorum.
func (l *Lock) releasePartial(ctx context.Context, path string, results []mscript.ServerResult) {
	winners := make([]mscript.Server, 0, len(results))
	for _, r := range results {
		if n, ok := r.Value.(int64); ok && n == 1 {
			winners = append(winners, r.Server)
		}
	}
	if len(winners) == 0 {
		return
	}
	l.runner.Run(ctx, scriptUnlock, winners, []string{path}, []interface{}{l.clientID})
}

// ExtendLock re-asserts ownership of path, re-running the lock script on
// any server that lost the key so a flapping minority rejoins quorum.
func (l *Lock) ExtendLock(ctx context.Context, path string) (int64, error) {
	expireAt := time.Now().Add(l.timeout).Unix()

	results := l.runner.Run(ctx, scriptExtend, l.servers, []string{path}, []interface{}{expireAt, l.clientID})

	extended := mquorum.CountMatching(results, func(r mscript.ServerResult) bool {
		n, ok := r.Value.(int64)
		return ok && n == 1
	})
	if extended < mquorum.Quorum(l.nServers) {
		return FAILED, merrors.ErrNoMajority
	}

	if l.secsLeft(expireAt) <= 0 {
		return FAILED, merrors.ErrCannotObtainLock
	}

	rejoin := make([]mscript.Server, 0, len(results))
	for _, r := range results {
		if n, ok := r.Value.(int64); ok && n == 0 {
			rejoin = append(rejoin, r.Server)
		}
	}
	if len(rejoin) > 0 {
		l.runner.Run(ctx, scriptLock, rejoin, []string{path}, []interface{}{l.clientID, expireAt})
	}
	return expireAt, nil
}

// Unlock releases path on every server and returns the fraction that
// confirmed the release, rather than a plain boolean, so callers can tell
// a clean majority release from a partial one.
func (l *Lock) Unlock(ctx context.Context, path string) float64 {
	results := l.runner.Run(ctx, scriptUnlock, l.servers, []string{path}, []interface{}{l.clientID})
	confirmed := mquorum.CountMatching(results, func(r mscript.ServerResult) bool {
		n, ok := r.Value.(int64)
		return ok && n == 1
	})
	if l.leases != nil {
		l.leases.Stop("mlock:" + path)
	}
	if len(l.servers) == 0 {
		return 0
	}
	return float64(confirmed) / float64(len(l.servers))
}

func (l *Lock) extendFunc() mlease.ExtendFunc {
	return func(ctx context.Context, path string) mlease.ExtendResult {
		expireAt, err := l.ExtendLock(ctx, path)
		if err != nil {
			return mlease.ExtendResult{Outcome: mlease.Failed}
		}
		secs := l.secsLeft(expireAt)
		if secs <= 0 {
			return mlease.ExtendResult{Outcome: mlease.Failed}
		}
		return mlease.ExtendResult{Outcome: mlease.Extended, SecondsLeft: secs}
	}
}
