package monitoring

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	JaegerEndpoint string
	Environment    string
	SamplingRate   float64
}

// TracingManager handles distributed tracing
type TracingManager struct {
	tracer     trace.Tracer
	config     *TracingConfig
	provider   *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
}

// NewTracingManager creates a tracing manager.
// Spans are exported to Jaeger only when tracing is enabled; otherwise they still
// carry valid ids for log correlation but are never exported.
func NewTracingManager(config *TracingConfig) (*TracingManager, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	}

	if config.Enabled {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	return &TracingManager{
		tracer:     tp.Tracer(config.ServiceName),
		config:     config,
		provider:   tp,
		propagator: propagator,
	}, nil
}

// StartSpan starts a new span
func (tm *TracingManager) StartSpan(ctx context.Context, operationName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, operationName, opts...)
}

// StartHTTPSpan starts a server span for an HTTP request
func (tm *TracingManager) StartHTTPSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, fmt.Sprintf("%s %s", method, route),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(route),
		),
	)
}

// StartLedgerSpan starts a span for a ledger operation (append, verify, lookup)
func (tm *TracingManager) StartLedgerSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "ledger."+operation,
		trace.WithAttributes(attribute.String("ledger.operation", operation)),
	)
}

// StartTokenSpan starts a span for an access token operation
func (tm *TracingManager) StartTokenSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "access_token."+operation,
		trace.WithAttributes(attribute.String("access_token.operation", operation)),
	)
}

// RecordError records an error in the span
func (tm *TracingManager) RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ExtractTraceContext extracts an incoming W3C trace context from HTTP headers
func (tm *TracingManager) ExtractTraceContext(ctx context.Context, headers http.Header) context.Context {
	return tm.propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// InjectTraceContext writes the current trace context into HTTP headers
func (tm *TracingManager) InjectTraceContext(ctx context.Context, headers http.Header) {
	tm.propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// Shutdown flushes and stops the tracing provider
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	return tm.provider.Shutdown(ctx)
}

// TraceIDFromContext extracts trace ID from context
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
