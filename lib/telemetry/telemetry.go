// Package telemetry wires the process-wide otel tracer provider and
// instruments outgoing HTTP traffic.
package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"fanarchive/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Telemetry struct {
	TracerProvider *trace.TracerProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	if t.TracerProvider == nil {
		return nil
	}
	return t.TracerProvider.Shutdown(ctx)
}

type OtlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

type Config struct {
	Traces OtlpConnConfig `json:"traces"`
}

// SetupFromEnv searches up the filesystem from the cwd for a
// telemetry.json5 config and sets up the tracer provider from it.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}

func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return Telemetry{}, err
	}

	exporter, err := newTraceExporter(ctx, config.Traces)
	if err != nil {
		return Telemetry{}, err
	}

	opts := []trace.TracerProviderOption{trace.WithResource(r)}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	provider := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return Telemetry{TracerProvider: provider}, nil
}

func newTraceExporter(ctx context.Context, conn OtlpConnConfig) (trace.SpanExporter, error) {
	switch {
	case conn.GrpcEndpoint != "":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(conn.GrpcEndpoint),
			otlptracegrpc.WithHeaders(conn.Headers),
		)
	case conn.HttpEndpoint != "":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(conn.HttpEndpoint),
			otlptracehttp.WithHeaders(conn.Headers),
		)
	default:
		// no endpoint configured: spans are recorded but not exported
		return nil, nil
	}
}

var testSetupOnce sync.Once

// SetupForTesting installs a tracer provider without an exporter so
// library spans are cheap no-ops under test. Safe to call from multiple
// tests; only the first call takes effect.
func SetupForTesting(t testing.TB, serviceName string) func() {
	cleanup := func() {}
	testSetupOnce.Do(func() {
		tel, err := Setup(context.Background(), serviceName, Config{})
		if err != nil {
			t.Fatal(err)
		}
		cleanup = func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
	})
	return cleanup
}
