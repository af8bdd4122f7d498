// Package mregister implements MajorityRegister: a last-writer-wins
// register with quorum reads, fire-and-forget read-repair, and a retry
// combinator for callers that want automatic retries on a transient
// failure to reach quorum.
package mregister

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mquorum"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

// Register implements Get/Set/Exists/TTL over a fixed cluster.
type Register struct {
	runner   *mscript.Runner
	servers  []mscript.Server
	nServers int
}

// Option configures a Register.
type Option func(*registerConfig)

type registerConfig struct {
	logger     mscript.Logger
	tracerProv trace.TracerProvider
	meterProv  metric.MeterProvider
}

// WithLogger attaches a diagnostic logger.
func WithLogger(lg mscript.Logger) Option { return func(c *registerConfig) { c.logger = lg } }

// WithTracerProvider attaches an OpenTelemetry TracerProvider used for
// every underlying script call. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *registerConfig) { c.tracerProv = tp }
}

// WithMeterProvider attaches an OpenTelemetry MeterProvider used to record
// call counts and latency. Defaults to nil (no metrics).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *registerConfig) { c.meterProv = mp }
}

// New constructs a Register over the given servers.
func New(servers []mscript.Server, nServers int, opts ...Option) *Register {
	cfg := &registerConfig{}
	for _, opt := range opts {
		opt(cfg)
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

	return &Register{
		runner:   mscript.NewRunner(newScripts(), runnerOpts...),
		servers:  servers,
		nServers: nServers,
	}
}

// Get implements a quorum read with read-repair: it queries every server,
// picks the value with the highest write timestamp, and asynchronously
// pushes that value back to any server that disagreed. It returns the
// winning value, or an error if no quorum of servers could be consulted.
func (r *Register) Get(ctx context.Context, path string) (string, error) {
	results := r.runner.Run(ctx, scriptGet, r.servers, []string{path, histKey}, nil)
	return r.resolveWinner(ctx, path, results, scriptSet)
}

func (r *Register) resolveWinner(ctx context.Context, path string, results []mscript.ServerResult, repairScript string) (string, error) {
	candidates := make([]mquorum.TimestampedValue, 0, len(results))
	errored := mquorum.Failing(results, "")
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		val, ts, hasTS := decodeValTS(res.Value)
		candidates = append(candidates, mquorum.TimestampedValue{Server: res.Server, Value: val, TS: ts, HasTS: hasTS})
	}

	failCount := len(errored)
	if failCount == len(results) {
		return "", merrors.ErrNoMajority
	}
	if failCount >= mquorum.Quorum(r.nServers) {
		return "", merrors.ErrNoMajority
	}

	winner, ok := mquorum.Winner(candidates)
	if !ok {
		return "", merrors.ErrNoMajority
	}

	targets := mquorum.ReadRepairTargets(candidates, winner, errored)
	if len(targets) > 0 {
		go r.runner.Run(context.WithoutCancel(ctx), repairScript, targets, []string{path, histKey}, []interface{}{winner.Value, winner.TS})
	}

	return winner.Value, nil
}

// Set implements a quorum write: it writes (v, ts=now) to every server and
// reports success only if fewer than a quorum of servers failed and every
// server that answered held an older history timestamp than ts. On partial
// disagreement it schedules a best-effort repair toward whichever value
// actually won and returns false.
func (r *Register) Set(ctx context.Context, path, value string) (bool, error) {
	ts := float64(time.Now().UnixNano()) / 1e9
	results := r.runner.Run(ctx, scriptSet, r.servers, []string{path, histKey}, []interface{}{value, ts})

	errored := mquorum.Failing(results, "")
	if len(errored) == len(results) {
		return false, nil
	}
	if len(errored) >= mquorum.Quorum(r.nServers) {
		return false, merrors.ErrNoMajority
	}

	type observation struct {
		server mscript.Server
		oldVal string
		oldTS  float64
		hasTS  bool
	}
	obs := make([]observation, 0, len(results))
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		oldVal, oldTS, hasTS := decodeValTS(res.Value)
		obs = append(obs, observation{server: res.Server, oldVal: oldVal, oldTS: oldTS, hasTS: hasTS})
	}

	highestOldTS := -1.0
	highestVal := value
	won := true
	for _, o := range obs {
		if !o.hasTS || o.oldTS < ts {
			continue
		}
		won = false
		if o.oldTS > highestOldTS {
			highestOldTS = o.oldTS
			highestVal = o.oldVal
		}
	}
	if won {
		return true, nil
	}

	badTargets := make([]mscript.Server, 0, len(obs))
	for _, o := range obs {
		if o.oldVal != highestVal || o.oldTS != highestOldTS {
			badTargets = append(badTargets, o.server)
		}
	}
	if len(badTargets) > 0 {
		go r.runner.Run(context.WithoutCancel(ctx), scriptSet, badTargets, []string{path, histKey}, []interface{}{highestVal, highestOldTS})
	}
	return false, nil
}

// Exists reports whether path has ever been written, by quorum.
func (r *Register) Exists(ctx context.Context, path string) (bool, error) {
	results := r.runner.Run(ctx, scriptExists, r.servers, []string{path, histKey}, nil)
	winner, err := r.resolveWinner(ctx, path, results, scriptSet)
	if err != nil {
		return false, err
	}
	return winner == "1", nil
}

// TTL returns the remaining time-to-live of path's underlying key, by
// quorum. Register values are ordinarily persistent (-1), since only the
// lock and queue primitives lease keys with an expiry; TTL exists because
// the external interface names it and surfaces whatever the
// underlying servers report.
func (r *Register) TTL(ctx context.Context, path string) (int64, error) {
	results := r.runner.Run(ctx, scriptTTL, r.servers, []string{path, histKey}, nil)
	winner, err := r.resolveWinner(ctx, path, results, scriptSet)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.ParseInt(winner, 10, 64)
	if convErr != nil {
		return 0, fmt.Errorf("mregister: unexpected ttl value %q: %w", winner, convErr)
	}
	return n, nil
}

// decodeValTS converts the {value, timestamp-or-false} script reply into
// Go values, the way gs_get/gs_set/gs_exists/gs_ttl all encode their
// second field.
func decodeValTS(raw interface{}) (string, float64, bool) {
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 2 {
		return "", 0, false
	}
	val := fmt.Sprint(arr[0])
	if arr[1] == nil {
		return val, 0, false
	}
	ts, err := strconv.ParseFloat(fmt.Sprint(arr[1]), 64)
	if err != nil {
		return val, 0, false
	}
	return val, ts, true
}
