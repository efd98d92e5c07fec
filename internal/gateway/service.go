package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/monitoring"
)

// Config holds the HTTP server configuration
type Config struct {
	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	AllowedOrigins      []string
	RateLimit           int
	RatePeriod          time.Duration
	RateLimitedPrefixes []string
	// TrustedProxies are the peers allowed to name the client in X-Forwarded-For
	TrustedProxies      []*net.IPNet
	MetricsPath         string
	HealthPath          string
}

// ParseTrustedProxies turns IPs and CIDRs into networks. A bare IP becomes a host network.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		networks = append(networks, network)
	}
	return networks, nil
}

// RouteRegistrar mounts API routes on the server router
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// Server owns the HTTP listener, the middleware chain and the operational endpoints
type Server struct {
	config     *Config
	router     *mux.Router
	server     *http.Server
	limiter    *RateLimiter
	health     *monitoring.HealthManager
	metrics    *monitoring.MetricsCollector
	monitoring *monitoring.MonitoringMiddleware
	logger     *logger.Logger
}

// NewServer builds the router: operational endpoints, then every registrar's routes,
// all behind CORS, security headers, monitoring and rate limiting.
// A nil limiter disables rate limiting.
func NewServer(
	config *Config,
	limiter *RateLimiter,
	health *monitoring.HealthManager,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingManager,
	log *logger.Logger,
	registrars ...RouteRegistrar,
) *Server {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.HealthPath == "" {
		config.HealthPath = "/health"
	}

	s := &Server{
		config:     config,
		router:     mux.NewRouter(),
		limiter:    limiter,
		health:     health,
		metrics:    metrics,
		monitoring: monitoring.NewMonitoringMiddleware(metrics, tracing, log),
		logger:     log,
	}

	s.setupMiddleware()
	s.setupRoutes(registrars)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the fully wired router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called; a graceful stop is not reported as an error
func (s *Server) Start() error {
	s.logger.WithComponent("gateway").WithField("addr", s.server.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.WithComponent("gateway").Info("Stopping HTTP server")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes(registrars []RouteRegistrar) {
	s.router.Handle(s.config.HealthPath, s.health.HTTPHandler()).Methods(http.MethodGet)
	s.router.Handle(s.config.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)

	for _, registrar := range registrars {
		registrar.RegisterRoutes(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.monitoring.HTTPMiddleware)
	s.router.Use(s.rateLimitMiddleware)
}
