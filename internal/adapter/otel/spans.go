package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codescope"

// StartDispatchSpan starts a span for a review task dispatch.
func StartDispatchSpan(ctx context.Context, taskID, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review.dispatch",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("project.id", projectID),
		),
	)
}

// StartFindingsSpan starts a span for ingesting worker findings.
func StartFindingsSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review.findings",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}
