package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
)

func TestMetricsCollector_SeparateRegistries(t *testing.T) {
	// collectors own their registry, so several can coexist in one process
	a := NewMetricsCollector("a")
	b := NewMetricsCollector("b")

	a.RecordTokenOperation("issue", ResultSuccess)
	a.RecordTokenOperation("issue", ResultSuccess)
	b.RecordTokenOperation("issue", ResultSuccess)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.tokenOperationsTotal.WithLabelValues("issue", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.tokenOperationsTotal.WithLabelValues("issue", ResultSuccess)))
}

func TestMetricsCollector_Ledger(t *testing.T) {
	m := NewMetricsCollector("test")

	m.RecordLedgerAppend("patient", true, 0, 2)
	m.RecordLedgerAppend("patient", false, 0, 99)
	m.RecordVerification(false, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerAppendsTotal.WithLabelValues("patient", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerAppendsTotal.WithLabelValues("patient", ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerLength))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerIntegrityViolations))
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector("test")
	m.SetLedgerLength(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ledger_length_blocks{service="test"} 3`)
}

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager("medchainx", "test")
	hm.RegisterChecker("ledger", NewLedgerHealthChecker(func() (int, int) { return 4, 0 }))
	hm.RegisterChecker("custom", CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusDegraded}
	}))

	report := hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "custom", report.Checks[0].Name)
	assert.Equal(t, "ledger", report.Checks[1].Name)

	rec := httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthManager_TamperedLedgerIsUnhealthy(t *testing.T) {
	hm := NewHealthManager("medchainx", "test")
	hm.RegisterChecker("ledger", NewLedgerHealthChecker(func() (int, int) { return 4, 2 }))

	rec := httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Equal(t, 1, report.Summary[string(HealthStatusUnhealthy)])
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	check := NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, check.Status)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	check = NewDatabaseHealthChecker(db).Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestRedisHealthChecker(t *testing.T) {
	assert.Equal(t, HealthStatusHealthy, NewRedisHealthChecker(fakePinger{}).Check(context.Background()).Status)
	assert.Equal(t, HealthStatusDegraded, NewRedisHealthChecker(fakePinger{err: errors.New("refused")}).Check(context.Background()).Status)
}

func TestMonitoringMiddleware(t *testing.T) {
	metrics := NewMetricsCollector("test")
	tracing, err := NewTracingManager(&TracingConfig{ServiceName: "test", SamplingRate: 1})
	require.NoError(t, err)
	defer tracing.Shutdown(context.Background())

	var seenRequestID interface{}
	router := mux.NewRouter()
	router.Use(NewMonitoringMiddleware(metrics, tracing, logger.NewNop()).HTTPMiddleware)
	router.HandleFunc("/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = r.Context().Value(logger.RequestIDKey)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "{}")
	})

	req := httptest.NewRequest(http.MethodGet, "/records/P1", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", seenRequestID)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Traceparent"), "00-"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues(http.MethodGet, "/records/{id}", "404")))
}

func TestMonitoringMiddleware_GeneratesRequestID(t *testing.T) {
	tracing, err := NewTracingManager(&TracingConfig{ServiceName: "test", SamplingRate: 1})
	require.NoError(t, err)

	handler := NewMonitoringMiddleware(NewMetricsCollector("test"), tracing, logger.NewNop()).
		HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chain", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}
