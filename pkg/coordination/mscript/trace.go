package mscript

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mscript"

const (
	attrScript   = "mscript.script"
	attrServer   = "mscript.server"
	attrOK       = "mscript.ok"
	attrNServers = "mscript.n_servers"
)

// getTracer returns tp's tracer, falling back to the global provider (a
// no-op tracer until the process configures one) when tp is nil.
func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func startRunSpan(ctx context.Context, tracer trace.Tracer, scriptName string, nServers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mscript.Run", trace.WithAttributes(
		attribute.String(attrScript, scriptName),
		attribute.Int(attrNServers, nServers),
	))
}

func startCallSpan(ctx context.Context, tracer trace.Tracer, scriptName, serverID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mscript.runOne", trace.WithAttributes(
		attribute.String(attrScript, scriptName),
		attribute.String(attrServer, serverID),
	))
}

func endCallSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool(attrOK, false))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(attrOK, true))
	}
	span.End()
}
