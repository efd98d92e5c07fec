package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/monitoring"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

type echoRoutes struct{}

func (echoRoutes) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/access-tokens", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, logger.NewNop(), http.StatusCreated, map[string]string{"ok": "yes"})
	}).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, logger.NewNop(), http.StatusOK, map[string]int{"length": 1})
	}).Methods(http.MethodGet)
	r.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, logger.NewNop(), errors.New("disk on fire"))
	}).Methods(http.MethodGet)
}

func setupServer(t *testing.T, limiter *RateLimiter, trustedProxies ...string) *Server {
	t.Helper()
	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{ServiceName: "test", SamplingRate: 1})
	require.NoError(t, err)
	proxies, err := ParseTrustedProxies(trustedProxies)
	require.NoError(t, err)

	return NewServer(&Config{
		Addr:                ":0",
		AllowedOrigins:      []string{"https://portal.example"},
		RatePeriod:          time.Minute,
		RateLimitedPrefixes: []string{"/access-tokens"},
		TrustedProxies:      proxies,
	}, limiter, monitoring.NewHealthManager("test", "dev"), monitoring.NewMetricsCollector("test"), tracing, logger.NewNop(), echoRoutes{})
}

func TestServer_Routes(t *testing.T) {
	s := setupServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chain", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(monitoring.RequestIDHeader))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ErrorBodies(t *testing.T) {
	s := setupServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body types.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, types.ErrCodeNotFound, body.Error.Code)
	assert.False(t, body.Timestamp.IsZero())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/chain", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	s := setupServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/access-tokens", nil)
	req.Header.Set("Origin", "https://portal.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/chain", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimitsTokenEndpoints(t *testing.T) {
	limiter, _ := newTestLimiter(2, time.Minute)
	s := setupServer(t, limiter)

	post := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/access-tokens", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, post("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusCreated, post("10.0.0.1:2222").Code)

	rec := post("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), types.ErrCodeRateLimitExceeded)

	assert.Equal(t, http.StatusCreated, post("10.0.0.2:1111").Code)

	// other routes are not limited
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/chain", nil)
		req.RemoteAddr = "10.0.0.1:4444"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestServer_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter, _ := newTestLimiter(2, time.Minute)
	s := setupServer(t, limiter)

	var codes []int
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/access-tokens", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{201, 201, 429, 429, 429, 429, 429, 429, 429, 429}, codes)
}

func TestServer_RateLimitBehindTrustedProxy(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)
	s := setupServer(t, limiter, "10.1.0.0/16")

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/access-tokens", nil)
		req.RemoteAddr = "10.1.0.5:8080"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	// each client behind the proxy gets its own bucket
	assert.Equal(t, http.StatusCreated, post("203.0.113.1"))
	assert.Equal(t, http.StatusCreated, post("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.1"))

	// a hop prepended by the client does not escape its bucket
	assert.Equal(t, http.StatusTooManyRequests, post("6.6.6.6, 203.0.113.2"))
}

func TestClientIP(t *testing.T) {
	direct := setupServer(t, nil)
	proxied := setupServer(t, nil, "10.0.0.1", "10.2.0.0/16")

	tests := []struct {
		name      string
		server    *Server
		remote    string
		forwarded string
		want      string
	}{
		{name: "peer address", server: direct, remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "untrusted peer ignores header", server: direct, remote: "192.0.2.1:5555", forwarded: "203.0.113.9", want: "192.0.2.1"},
		{name: "trusted peer without header", server: proxied, remote: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "trusted peer names client", server: proxied, remote: "10.0.0.1:80", forwarded: "203.0.113.9", want: "203.0.113.9"},
		{name: "rightmost untrusted hop wins", server: proxied, remote: "10.0.0.1:80", forwarded: "1.2.3.4, 203.0.113.9, 10.2.3.4", want: "203.0.113.9"},
		{name: "all hops trusted", server: proxied, remote: "10.0.0.1:80", forwarded: "10.2.0.9, 10.2.0.8", want: "10.2.0.9"},
		{name: "garbage hop falls back to peer", server: proxied, remote: "10.0.0.1:80", forwarded: "not-an-ip", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, tt.server.clientIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	networks, err := ParseTrustedProxies([]string{"10.0.0.1", "172.16.0.0/12", "2001:db8::1"})
	require.NoError(t, err)
	require.Len(t, networks, 3)
	assert.True(t, networks[0].Contains(net.ParseIP("10.0.0.1")))
	assert.False(t, networks[0].Contains(net.ParseIP("10.0.0.2")))
	assert.True(t, networks[1].Contains(net.ParseIP("172.20.1.1")))
	assert.True(t, networks[2].Contains(net.ParseIP("2001:db8::1")))

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/40"})
	assert.Error(t, err)
}
