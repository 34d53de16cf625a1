package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartRun opens a run-level span that serves as the parent for all inner
// operations (LLM calls, lane executions, embeddings) via context
// propagation. The returned finish function must be called exactly once
// with the run's terminal error, if any.
func StartRun(ctx context.Context, inst *Instruments, sessionID, runID string) (context.Context, func(err error)) {
	ctx, span := inst.Tracer.Start(ctx, "run.execute", trace.WithAttributes(
		AttrRunID.String(runID),
		AttrSessionID.String(sessionID),
	))
	start := time.Now()
	span.AddEvent("run.started")

	finish := func(err error) {
		defer span.End()
		durationMs := float64(time.Since(start).Milliseconds())
		status := "ok"

		if ctx.Err() != nil && err != nil {
			status = "cancelled"
			span.AddEvent("run.cancelled")
			span.SetStatus(codes.Error, "cancelled")
		} else if err != nil {
			status = "error"
			span.AddEvent("run.failed", trace.WithAttributes(
				attribute.String("error", err.Error()),
			))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.AddEvent("run.completed")
		}

		span.SetAttributes(AttrRunStatus.String(status))

		inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", status),
		))
		inst.RunDuration.Record(ctx, durationMs, metric.WithAttributes())

		// Structured log
		var rec otellog.Record
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetBody(otellog.StringValue("run completed"))
		rec.AddAttributes(
			otellog.String("run.id", runID),
			otellog.String("run.session_id", sessionID),
			otellog.String("run.status", status),
			otellog.Float64("run.duration_ms", durationMs),
		)
		inst.Logger.Emit(ctx, rec)
	}

	return ctx, finish
}
