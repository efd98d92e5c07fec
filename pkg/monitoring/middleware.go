package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// MonitoringMiddleware combines request ids, metrics, tracing and access logging
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	tracing *TracingManager
	logger  *logger.Logger
}

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(metrics *MetricsCollector, tracing *TracingManager, log *logger.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// HTTPMiddleware wraps next with request id propagation, a server span,
// request metrics and one access log line per request.
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)

		route := routeTemplate(r)
		ctx = mm.tracing.ExtractTraceContext(ctx, r.Header)
		ctx, span := mm.tracing.StartHTTPSpan(ctx, r.Method, route)
		defer span.End()

		if traceID := TraceIDFromContext(ctx); traceID != "" {
			ctx = context.WithValue(ctx, logger.TraceIDKey, traceID)
		}

		span.SetAttributes(
			semconv.HTTPUserAgentKey.String(r.UserAgent()),
			attribute.String("request.id", requestID),
		)

		wrapper := &monitoringResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		wrapper.Header().Set(RequestIDHeader, requestID)
		mm.tracing.InjectTraceContext(ctx, wrapper.Header())

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(start)
		mm.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapper.statusCode), duration)

		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(wrapper.statusCode),
			attribute.Int64("http.response_size", wrapper.bytesWritten),
		)
		if wrapper.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapper.statusCode))
		}

		mm.logger.HTTPRequest(ctx, r.Method, r.URL.Path, r.UserAgent(), r.RemoteAddr, wrapper.statusCode, duration.Milliseconds())
	})
}

// routeTemplate returns the matched mux route template so metric labels stay bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// monitoringResponseWriter wraps http.ResponseWriter to capture metrics
type monitoringResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (mrw *monitoringResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *monitoringResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.bytesWritten += int64(n)
	return n, err
}
