// Package fabrictrace wraps go.opentelemetry.io/otel/trace to give
// Fabric submissions and compute dispatches OpenTelemetry spans: one
// per Fabric.TaskDo/ComputeTaskDo submission, and one per compute
// dispatch workgroup. The teacher declares the otel stack in its go.mod
// without exercising it; this package gives it a genuine, narrow home
// rather than wiring a full distributed-tracing surface Fabric (an
// in-process runtime) has no real use for.
package fabrictrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/quadgate/fabric"

var tracer = otel.Tracer(instrumentationName)

// NewTracerProvider builds an SDK TracerProvider using exporter (e.g. an
// stdouttrace exporter) and a resource labeled with serviceName, and
// installs it as the global provider so Tracer() picks it up.
func NewTracerProvider(exporter sdktrace.SpanExporter, serviceName string) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// StartTask starts a span around one Fabric task submission. kind is
// "task" or "compute", matching pkg/metrics' label convention.
func StartTask(ctx context.Context, kind, workerName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fabric.task",
		trace.WithAttributes(
			attribute.String("fabric.task.kind", kind),
			attribute.String("fabric.worker", workerName),
		),
	)
}

// StartWorkgroup starts a span around one compute dispatch workgroup.
func StartWorkgroup(ctx context.Context, kind string, workgroupID [3]int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fabric.compute.workgroup",
		trace.WithAttributes(
			attribute.String("fabric.compute.kind", kind),
			attribute.IntSlice("fabric.compute.workgroup_id", workgroupID[:]),
		),
	)
}
