// Package telemetry records spans around the interesting phases of a run:
// change resolution, matrix building and each terraform invocation. Disabled
// unless explicitly turned on, in which case spans go to the console exporter.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratum-ci/stratum/internal/errors"
)

// Options configures telemetry collection.
type Options struct {
	AppName    string
	AppVersion string
	Writer     io.Writer
	Enabled    bool
}

// Telemeter owns the trace provider. The zero value is a disabled telemeter
// whose Collect calls the wrapped function directly.
type Telemeter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTelemeter builds a telemeter. When disabled it still returns a usable
// no-op instance.
func NewTelemeter(opts *Options) (*Telemeter, error) {
	if !opts.Enabled {
		return new(Telemeter), nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(opts.Writer),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.AppName),
			semconv.ServiceVersion(opts.AppVersion),
		),
	)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &Telemeter{
		provider: provider,
		tracer:   provider.Tracer(opts.AppName),
	}, nil
}

// Collect wraps fn in a span. Disabled telemeters invoke fn directly.
func (tlm *Telemeter) Collect(ctx context.Context, name string, attrs map[string]any, fn func(ctx context.Context) error) error {
	if tlm == nil || tlm.provider == nil {
		return fn(ctx)
	}

	ctx, span := tlm.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// Shutdown flushes pending spans.
func (tlm *Telemeter) Shutdown(ctx context.Context) error {
	if tlm == nil || tlm.provider == nil {
		return nil
	}

	return tlm.provider.Shutdown(ctx)
}

func toAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))

	for key, value := range attrs {
		switch value := value.(type) {
		case string:
			out = append(out, attribute.String(key, value))
		case int:
			out = append(out, attribute.Int(key, value))
		case bool:
			out = append(out, attribute.Bool(key, value))
		default:
			out = append(out, attribute.String(key, fmt.Sprint(value)))
		}
	}

	return out
}
