package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus is the state of one dependency or of the whole service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the outcome of a single checker
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
	Latency   string                 `json:"latency"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport aggregates every registered check. Checks are ordered by name.
type HealthReport struct {
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Checks    []HealthCheck  `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// HealthManager runs registered checkers in parallel, each under its own timeout
type HealthManager struct {
	service  string
	version  string
	timeout  time.Duration
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

func NewHealthManager(service, version string) *HealthManager {
	return &HealthManager{
		service:  service,
		version:  version,
		timeout:  5 * time.Second,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces the checker under name
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	hm.checkers[name] = checker
	hm.mu.Unlock()
}

func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]HealthChecker, len(names))
	for i, name := range names {
		checkers[i] = hm.checkers[name]
	}
	hm.mu.RUnlock()

	checks := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i := range checkers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, hm.timeout)
			defer cancel()

			started := time.Now()
			check := checkers[i].Check(checkCtx)
			check.Name = names[i]
			check.CheckedAt = started.UTC()
			check.Latency = time.Since(started).String()
			checks[i] = check
		}(i)
	}
	wg.Wait()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Service:   hm.service,
		Version:   hm.version,
		Checks:    checks,
		Summary:   make(map[string]int),
	}
	for _, check := range checks {
		report.Summary[string(check.Status)]++
	}
	switch {
	case report.Summary[string(HealthStatusUnhealthy)] > 0:
		report.Status = HealthStatusUnhealthy
	case report.Summary[string(HealthStatusDegraded)] > 0:
		report.Status = HealthStatusDegraded
	}
	return report
}

// HTTPHandler serves the report. Only an unhealthy service answers 503.
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		status := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// DatabaseHealthChecker pings the block store database and reports pool usage
type DatabaseHealthChecker struct {
	db *sql.DB
}

func NewDatabaseHealthChecker(db *sql.DB) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db}
}

func (c *DatabaseHealthChecker) Check(ctx context.Context) HealthCheck {
	if err := c.db.PingContext(ctx); err != nil {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("block store unreachable: %v", err),
		}
	}

	stats := c.db.Stats()
	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "block store reachable",
		Details: map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
		},
	}
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		check.Status = HealthStatusDegraded
		check.Message = "block store connection pool saturated"
	}
	return check
}

// LedgerVerifyFunc walks the chain and reports its length and violation count
type LedgerVerifyFunc func() (length, violations int)

// LedgerHealthChecker reports the chain unhealthy when verification finds violations
type LedgerHealthChecker struct {
	verify LedgerVerifyFunc
}

// NewLedgerHealthChecker creates a new ledger integrity checker
func NewLedgerHealthChecker(verify LedgerVerifyFunc) *LedgerHealthChecker {
	return &LedgerHealthChecker{verify: verify}
}

// Check performs the ledger integrity check
func (lhc *LedgerHealthChecker) Check(ctx context.Context) HealthCheck {
	length, violations := lhc.verify()
	check := HealthCheck{
		Details: map[string]interface{}{
			"length":     length,
			"violations": violations,
		},
	}

	if violations > 0 {
		check.Status = HealthStatusUnhealthy
		check.Message = "Ledger integrity violation detected"
	} else {
		check.Status = HealthStatusHealthy
		check.Message = "Ledger chain intact"
	}
	return check
}

// RedisPinger is satisfied by every go-redis client
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisHealthChecker checks the revocation registry backend
type RedisHealthChecker struct {
	client RedisPinger
}

// NewRedisHealthChecker creates a new Redis health checker
func NewRedisHealthChecker(client RedisPinger) *RedisHealthChecker {
	return &RedisHealthChecker{client: client}
}

// Check performs the Redis health check.
// Redis only backs revocations, so an outage degrades the service rather than failing it.
func (rhc *RedisHealthChecker) Check(ctx context.Context) HealthCheck {
	if err := rhc.client.Ping(ctx).Err(); err != nil {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("Redis ping failed: %v", err),
		}
	}
	return HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Redis connection healthy",
	}
}

// CheckFunc adapts a plain function to HealthChecker
type CheckFunc func(ctx context.Context) HealthCheck

func (f CheckFunc) Check(ctx context.Context) HealthCheck {
	return f(ctx)
}
