package fabrictrace_test

import (
	"context"
	"testing"

	"github.com/quadgate/fabric/pkg/fabrictrace"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

func TestStartTaskProducesRecordingSpan(t *testing.T) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		t.Fatalf("stdouttrace.New() error = %v", err)
	}
	tp := fabrictrace.NewTracerProvider(exporter, "fabric-test")
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := fabrictrace.StartTask(context.Background(), "task", "worker-0")
	defer span.End()

	if !span.IsRecording() {
		t.Fatal("span.IsRecording() = false, want true")
	}
	if tp == nil {
		t.Fatal("NewTracerProvider returned nil")
	}
}

func TestStartWorkgroupProducesRecordingSpan(t *testing.T) {
	exporter, err := stdouttrace.New()
	if err != nil {
		t.Fatalf("stdouttrace.New() error = %v", err)
	}
	tp := fabrictrace.NewTracerProvider(exporter, "fabric-test")
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := fabrictrace.StartWorkgroup(context.Background(), "compute", [3]int{1, 2, 3})
	defer span.End()

	if !span.IsRecording() {
		t.Fatal("span.IsRecording() = false, want true")
	}
}
