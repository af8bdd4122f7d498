// Package mscript implements the ScriptRunner component: it uploads named
// Lua scripts to every server on first use, caches per-server script
// handles, and fans a script invocation out across servers via an injected
// Mapper. It normalizes each server's outcome into a ServerResult whose
// Err slot distinguishes transport failures from script-level
// [merrors.LogicalError] values so callers can tell a healthy server that
// refused an operation from one that is actually unreachable.
package mscript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
)

// Server names one backing Redis-compatible endpoint participating in the
// cluster. ID is used for logging, tracing, and breaker bookkeeping; it
// need not be the network address.
type Server struct {
	ID     string
	Client redis.UniversalClient
}

// ServerResult is the per-server outcome of a single script invocation:
// exactly one of Value or Err is meaningful.
type ServerResult struct {
	Server Server
	Value  interface{}
	Err    error
}

// Succeeded reports whether this slot carries a usable value.
func (r ServerResult) Succeeded() bool { return r.Err == nil }

// Runner owns the named-script registry and the per-server circuit
// breakers, and executes a named script against a set of servers.
type Runner struct {
	scripts  map[string]*redis.Script
	breakers map[string]*gobreaker.CircuitBreaker[interface{}]
	mapper   Mapper
	logger   Logger
	tracer   trace.Tracer
	metrics  *runMetrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithMapper overrides the fan-out strategy. Defaults to ParallelMapper.
func WithMapper(m Mapper) Option {
	return func(r *Runner) {
		if m != nil {
			r.mapper = m
		}
	}
}

// WithLogger attaches a logger used for per-server transport-error
// diagnostics. Defaults to a no-op logger.
func WithLogger(l Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracerProvider attaches an OpenTelemetry TracerProvider; every
// Run/runOne call is wrapped in a span. Defaults to the global provider,
// which is a no-op tracer until the process configures one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		r.tracer = getTracer(tp)
	}
}

// WithMeterProvider attaches an OpenTelemetry MeterProvider; call counts,
// latency, and breaker trips are recorded against it. Defaults to nil,
// which makes every metric recording a no-op.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Runner) {
		m, err := newRunMetrics(mp)
		if err == nil {
			r.metrics = m
		}
	}
}

// NewRunner builds a Runner for the given named scripts. Each script is
// wrapped in its own redis.Script, which already implements the
// EVALSHA-then-EVAL-on-NOSCRIPT fallback: a cache miss on one server costs
// exactly one extra round trip to that server and never aborts the fan-out.
func NewRunner(scripts map[string]*redis.Script, opts ...Option) *Runner {
	r := &Runner{
		scripts:  scripts,
		breakers: make(map[string]*gobreaker.CircuitBreaker[interface{}]),
		mapper:   ParallelMapper{},
		logger:   noopLogger{},
		tracer:   getTracer(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) breakerFor(serverID string) *gobreaker.CircuitBreaker[interface{}] {
	if b, ok := r.breakers[serverID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        serverID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[serverID] = b
	return b
}

// Run invokes the named script against every server, substituting a fresh
// value for each Randint argument on every per-server call (the randomized
// score-bump in lq_lock needs an independent seed per server). Results are
// returned in whatever order the Mapper produces them; callers must not
// assume alignment with the servers slice.
func (r *Runner) Run(ctx context.Context, name string, servers []Server, keys []string, args []interface{}) []ServerResult {
	ctx, span := startRunSpan(ctx, r.tracer, name, len(servers))
	defer span.End()

	script, ok := r.scripts[name]
	if !ok {
		out := make([]ServerResult, len(servers))
		for i, s := range servers {
			out[i] = ServerResult{Server: s, Err: fmt.Errorf("mscript: unknown script %q", name)}
		}
		return out
	}

	items := make([]interface{}, len(servers))
	for i, s := range servers {
		items[i] = s
	}

	raw := r.mapper.Map(ctx, func(item interface{}) interface{} {
		server := item.(Server)
		resolvedArgs := resolveRandints(args)
		return r.runOne(ctx, name, script, server, keys, resolvedArgs)
	}, items)

	out := make([]ServerResult, len(raw))
	for i, v := range raw {
		out[i] = v.(ServerResult)
	}
	return out
}

func (r *Runner) runOne(ctx context.Context, name string, script *redis.Script, server Server, keys []string, args []interface{}) ServerResult {
	ctx, span := startCallSpan(ctx, r.tracer, name, server.ID)
	start := time.Now()

	breaker := r.breakerFor(server.ID)
	val, err := breaker.Execute(func() (interface{}, error) {
		return script.Run(ctx, server.Client, keys, args...).Result()
	})

	r.metrics.recordCall(ctx, name, server.ID, err == nil, time.Since(start))
	endCallSpan(span, err)

	if err != nil {
		if kind, ok := logicalErrorKind(err); ok {
			return ServerResult{Server: server, Err: merrors.NewLogicalError(kind)}
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Warn("mscript: breaker open, skipping server", "server", server.ID, "script", script)
			r.metrics.recordBreakerTrip(ctx, server.ID)
			return ServerResult{Server: server, Err: fmt.Errorf("mscript: circuit open for %s: %w", server.ID, err)}
		}
		r.logger.Debug("mscript: transport error", "server", server.ID, "err", err)
		return ServerResult{Server: server, Err: err}
	}
	return ServerResult{Server: server, Value: val}
}

// logicalErrorKind extracts the {err=...} payload a Lua script returns, as
// surfaced by go-redis's redis.Error type, and reports whether the error
// text looks like one of our known logical-error kinds rather than an
// unrelated Redis-level failure.
func logicalErrorKind(err error) (string, bool) {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return "", false
	}
	msg := redisErr.Error()
	for _, kind := range []string{
		merrors.LogicalQueueEmpty,
		merrors.LogicalAlreadyLocked,
		merrors.LogicalAlreadyCompleted,
		merrors.LogicalInvalidExpireAt,
		merrors.LogicalExpired,
		merrors.LogicalKeyDoesNotExist,
	} {
		if containsFold(msg, kind) {
			return kind, true
		}
	}
	return "", false
}
