package mclient

import (
	"context"
	"log/slog"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
	"github.com/adgaudio/MajorityRedis/pkg/observability/xlog"
)

// xlogAdapter satisfies mscript.Logger by forwarding to an xlog.Logger,
// converting the printf-style (msg, key, val, key, val...) argument
// convention used by mscript/mlock/mregister/mqueue into slog.Attr pairs.
type xlogAdapter struct {
	lg xlog.Logger
}

// NewLogger adapts an xlog.Logger (built via xlog.New()) into the minimal
// mscript.Logger surface the coordination packages depend on, so a single
// ambient logging pipeline (rotation, format, level) backs every primitive
// instead of each package reimplementing its own.
func NewLogger(lg xlog.Logger) mscript.Logger {
	return xlogAdapter{lg: lg}
}

func (a xlogAdapter) Debug(msg string, args ...interface{}) {
	a.lg.Debug(context.Background(), msg, toAttrs(args)...)
}

func (a xlogAdapter) Warn(msg string, args ...interface{}) {
	a.lg.Warn(context.Background(), msg, toAttrs(args)...)
}

// toAttrs pairs up a flat (key, val, key, val, ...) arg list into slog.Attr,
// dropping a trailing unpaired key rather than panicking on malformed
// call sites.
func toAttrs(args []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}

// NewDefaultLogger builds an xlog-backed logger fixed to component, and
// returns the mscript.Logger adapter plus the cleanup function from
// xlog.Builder.Build. component should be one of mlock/mregister/mqueue/
// mclient so concurrent primitives in the same process can be told apart
// in structured output.
func NewDefaultLogger(component string) (mscript.Logger, func() error, error) {
	lg, cleanup, err := xlog.New().SetComponent(component).Build()
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(lg), cleanup, nil
}

// NewDefaultLoggerAtLevel is NewDefaultLogger plus an explicit level
// string (debug/info/warn/error), used by cmd/quorumctl's --log-level
// flag.
func NewDefaultLoggerAtLevel(component, level string) (mscript.Logger, func() error, error) {
	lg, cleanup, err := xlog.New().SetComponent(component).SetLevelString(level).Build()
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(lg), cleanup, nil
}
