// Package service provides the lifecycle scaffolding shared by relay services:
// a router, background workers, hydration, and dependency health checks.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/relay_layer/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// Health states reported by HealthStatus.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	Name    string
	Version string
	Logger  *logging.Logger
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type healthEntry struct {
	name     string
	critical bool
	check    HealthCheck
}

// BaseService owns the router, background workers and health state.
type BaseService struct {
	name    string
	version string
	logger  *logging.Logger
	router  *mux.Router

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hydrate func(context.Context) error
	statsFn func() map[string]any
	workers []func(context.Context)
	checks  []healthEntry

	healthMu        sync.RWMutex
	checkResults    map[string]string
	status          string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BaseService{
		name:         cfg.Name,
		version:      cfg.Version,
		logger:       logger,
		router:       mux.NewRouter(),
		stopCh:       make(chan struct{}),
		checkResults: make(map[string]string),
		status:       StatusHealthy,
	}
}

func (b *BaseService) Name() string              { return b.name }
func (b *BaseService) Version() string           { return b.version }
func (b *BaseService) Logger() *logging.Logger   { return b.logger }
func (b *BaseService) Router() *mux.Router       { return b.router }
func (b *BaseService) StopChan() <-chan struct{} { return b.stopCh }
func (b *BaseService) WorkerCount() int          { return len(b.workers) }

// WithHydrate sets a hook run once during Start, before workers launch.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets the statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers must return once ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers fn to run every interval until Stop.
func (b *BaseService) AddTickerWorker(name string, interval time.Duration, fn func(context.Context) error) *BaseService {
	return b.AddWorker(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.WithContext(ctx).WithError(err).WithField("worker", name).Warn("Worker iteration failed")
				}
			}
		}
	})
}

// AddHealthCheck registers a dependency probe. A failing critical check makes
// the service unhealthy, a failing non-critical one degraded.
func (b *BaseService) AddHealthCheck(name string, critical bool, check HealthCheck) *BaseService {
	b.checks = append(b.checks, healthEntry{name: name, critical: critical, check: check})
	return b
}

// Start runs hydrate once, then spins workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(ctx)
		}()
	}
	b.logger.WithFields(map[string]interface{}{
		"version": b.version,
		"workers": len(b.workers),
	}).Info("Service started")
	return nil
}

// Stop signals workers and waits for them. Safe to call more than once.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	return nil
}

// CheckHealth probes every registered dependency and caches the result.
func (b *BaseService) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(b.checks))
	status := StatusHealthy
	for _, c := range b.checks {
		if err := c.check(ctx); err != nil {
			results[c.name] = err.Error()
			if c.critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
			continue
		}
		results[c.name] = "ok"
	}

	b.healthMu.Lock()
	b.checkResults = results
	b.status = status
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus refreshes and returns the aggregated health status.
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.status
}

// HealthDetails describes the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	names := make([]string, 0, len(b.checkResults))
	for name := range b.checkResults {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]string, len(names))
	for _, name := range names {
		checks[name] = b.checkResults[name]
	}

	details := map[string]any{
		"checks":     checks,
		"last_check": "",
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.Truncate(time.Second).String()
	return details
}
