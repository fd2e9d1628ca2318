package config

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/version"
)

// Telemetry holds the configured OTEL providers for later shutdown.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			log.Warn("could not shutdown tracer provider", log.ErrorField(err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			log.Warn("could not shutdown meter provider", log.ErrorField(err))
		}
	}
}

// SetupTelemetry initializes the global OTEL providers. With an empty
// TelemetryEndpoint the stdout exporters are used.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("incident-service"),
			semconv.ServiceVersion(version.Version),
		))
	if err != nil {
		return nil, err
	}

	ret := &Telemetry{}
	if ret.tracerProvider, err = setupTraces(ctx, res); err != nil {
		return nil, err
	}
	if ret.meterProvider, err = setupMetrics(ctx, res); err != nil {
		return nil, err
	}
	otel.SetTracerProvider(ret.tracerProvider)
	otel.SetMeterProvider(ret.meterProvider)
	return ret, nil
}

//nolint:whitespace // can't make both editor and linter happy
func setupTraces(ctx context.Context, res *resource.Resource) (
	*sdktrace.TracerProvider, error,
) {
	var exp sdktrace.SpanExporter
	var err error
	if TelemetryEndpoint == "" {
		exp, err = stdouttrace.New()
	} else {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

//nolint:whitespace // can't make both editor and linter happy
func setupMetrics(ctx context.Context, res *resource.Resource) (
	*sdkmetric.MeterProvider, error,
) {
	var exp sdkmetric.Exporter
	var err error
	if TelemetryEndpoint == "" {
		exp, err = stdoutmetric.New()
	} else {
		exp, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	), nil
}
