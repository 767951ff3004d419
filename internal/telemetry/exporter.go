package telemetry

import (
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Identity tags every exported span and log record.
type Identity struct {
	Service   string
	Namespace string
	Version   string
}

func (id Identity) resource() (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", id.Service),
		attribute.String("service.namespace", id.Namespace),
		attribute.String("service.version", id.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	return res, nil
}

// NewSpanExporter resolves a configured exporter name. "none" returns a nil exporter.
func NewSpanExporter(name string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(w))
	default:
		return nil, fmt.Errorf("telemetry: unknown span exporter %q", name)
	}
}

// NewLogExporter resolves a configured exporter name. "none" returns a nil exporter.
func NewLogExporter(name string, w io.Writer) (sdklog.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(w))
	default:
		return nil, fmt.Errorf("telemetry: unknown log exporter %q", name)
	}
}

// NewLoggerProvider batches bridged log records into the given processors.
func NewLoggerProvider(id Identity, processors ...sdklog.Processor) (*sdklog.LoggerProvider, error) {
	res, err := id.resource()
	if err != nil {
		return nil, err
	}
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, p := range processors {
		opts = append(opts, sdklog.WithProcessor(p))
	}
	return sdklog.NewLoggerProvider(opts...), nil
}
