// Package telemetry provides OpenTelemetry OTLP gRPC export for scan runs.
// Spans cover the run, each shard, and the report build; the endpoint is
// any OTLP collector (Grafana, Datadog, X-Ray).
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the OTLP gRPC exporter.
type Config struct {
	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion is the version of this service
	ServiceVersion string

	// Environment is the deployment environment
	Environment string

	// InsecureTLS disables TLS for the gRPC connection (local dev)
	InsecureTLS bool

	// Headers are sent with each request (e.g., auth tokens)
	Headers map[string]string

	// BatchTimeout is how long to wait before sending a batch of spans
	BatchTimeout time.Duration

	// MaxBatchSize is the maximum number of spans per batch
	MaxBatchSize int

	// MaxQueueSize is the maximum number of spans queued before dropping
	MaxQueueSize int

	// ExportTimeout is the timeout for exporting a batch
	ExportTimeout time.Duration

	// SamplingRatio is the fraction of traces to sample (0.0 to 1.0)
	SamplingRatio float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(endpoint string) Config {
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	return Config{
		Endpoint:       endpoint,
		ServiceName:    "datagrade",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		InsecureTLS:    true,
		BatchTimeout:   5 * time.Second,
		MaxBatchSize:   512,
		MaxQueueSize:   2048,
		ExportTimeout:  30 * time.Second,
		SamplingRatio:  1.0,
	}
}

// Exporter manages the OTLP exporter lifecycle.
type Exporter struct {
	mu sync.Mutex

	cfg         Config
	provider    *sdktrace.TracerProvider
	tracer      trace.Tracer
	shutdown    func(context.Context) error
	initialized bool
}

// NewExporter creates an OTLP gRPC exporter.
func NewExporter(cfg Config) *Exporter {
	return &Exporter{cfg: cfg}
}

// Init sets up the exporter and the global tracer provider. The returned
// shutdown function flushes and closes the exporter.
func (e *Exporter) Init(ctx context.Context) (func(context.Context) error, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return e.shutdown, nil
	}

	dialOpts := []grpc.DialOption{}
	if e.cfg.InsecureTLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(e.cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOpts...),
		otlptracegrpc.WithTimeout(e.cfg.ExportTimeout),
	}
	if e.cfg.InsecureTLS {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(e.cfg.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(e.cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(e.cfg.ServiceName),
			semconv.ServiceVersion(e.cfg.ServiceVersion),
			semconv.DeploymentEnvironment(e.cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case e.cfg.SamplingRatio >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case e.cfg.SamplingRatio <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(e.cfg.SamplingRatio)
	}

	e.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(e.cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(e.cfg.MaxBatchSize),
			sdktrace.WithMaxQueueSize(e.cfg.MaxQueueSize),
			sdktrace.WithExportTimeout(e.cfg.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(e.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	e.tracer = e.provider.Tracer(e.cfg.ServiceName)
	e.shutdown = func(ctx context.Context) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.initialized {
			return nil
		}
		e.initialized = false
		return e.provider.Shutdown(ctx)
	}
	e.initialized = true
	return e.shutdown, nil
}

// Tracer returns the tracer, nil before Init.
func (e *Exporter) Tracer() trace.Tracer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracer
}

// Init initializes the global OTLP pipeline and returns its shutdown
// function. This is the main entry point for enabling export.
func Init(cfg Config) (trace.Tracer, func(context.Context) error, error) {
	exporter := NewExporter(cfg)
	shutdown, err := exporter.Init(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return exporter.Tracer(), shutdown, nil
}
