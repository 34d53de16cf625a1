package observer

import (
	"context"
	"time"

	omniagent "github.com/rishisan99/OmniAgent"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedLane wraps an omniagent.Lane with OTEL instrumentation. Register
// the wrapper instead of the lane and every task execution gets a span,
// metrics, and a structured log record.
type ObservedLane struct {
	inner omniagent.Lane
	inst  *Instruments
}

// WrapLane returns an instrumented lane.
func WrapLane(inner omniagent.Lane, inst *Instruments) *ObservedLane {
	return &ObservedLane{inner: inner, inst: inst}
}

func (o *ObservedLane) Kind() string { return o.inner.Kind() }

func (o *ObservedLane) Run(ctx context.Context, t omniagent.Task, st *omniagent.RunState, em *omniagent.Emitter) omniagent.ToolResult {
	ctx, span := o.inst.Tracer.Start(ctx, "lane.run", trace.WithAttributes(
		AttrLaneKind.String(o.inner.Kind()),
		AttrTaskID.String(t.ID),
		AttrSessionID.String(st.SessionID),
	))
	defer span.End()
	start := time.Now()

	result := o.inner.Run(ctx, t, st, em)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if !result.OK {
		status = "lane_error"
		span.SetStatus(codes.Error, result.Err)
	}

	span.SetAttributes(AttrLaneStatus.String(status))

	o.inst.LaneExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrLaneKind.String(o.inner.Kind()),
		attribute.String("status", status),
	))
	o.inst.LaneDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLaneKind.String(o.inner.Kind()),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("lane executed"))
	rec.AddAttributes(
		otellog.String("lane.kind", o.inner.Kind()),
		otellog.String("lane.task_id", t.ID),
		otellog.String("lane.status", status),
		otellog.Float64("lane.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result
}
