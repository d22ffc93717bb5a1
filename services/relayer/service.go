// Package relayer is the gasless relay: it accepts signed transaction intents,
// checks freshness and signatures, and forwards them through the caller's
// smart wallet with the relay operator paying the fee.
package relayer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/relay_layer/internal/keydir"
	"github.com/R3E-Network/relay_layer/internal/logging"
	"github.com/R3E-Network/relay_layer/internal/metrics"
	"github.com/R3E-Network/relay_layer/internal/middleware"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/replay"
	"github.com/R3E-Network/relay_layer/internal/storage"
	commonservice "github.com/R3E-Network/relay_layer/services/common/service"
)

const (
	ServiceName = "relayer"
	Version     = "1.0.0"

	DefaultRequestTimeout = 90 * time.Second
)

// Config wires a relay Service.
type Config struct {
	Logger *logging.Logger

	Keys      keydir.Directory
	Forwarder WalletForwarder
	Mode      *mode.Tracker

	// Seen enables signature de-duplication when non-nil.
	Seen replay.SeenStore
	// Store defaults to an in-memory audit trail.
	Store storage.RelayStore
	// Metrics is optional.
	Metrics *metrics.Metrics

	Window         replay.Window
	RequestTimeout time.Duration

	// Auth protects the admin routes. Admin routes are not registered when nil.
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string

	// AuditRetention enables the pruning job when positive.
	AuditRetention time.Duration
	RetentionSpec  string

	Now func() time.Time
}

// Service is the relay HTTP service.
type Service struct {
	*commonservice.BaseService

	keys      keydir.Directory
	forwarder WalletForwarder
	tracker   *mode.Tracker
	seen      replay.SeenStore
	store     storage.RelayStore
	metrics   *metrics.Metrics

	window         replay.Window
	requestTimeout time.Duration
	now            func() time.Time

	relayed  atomic.Int64
	rejected atomic.Int64
}

// New validates cfg and builds the service with its routes and workers.
func New(cfg Config) (*Service, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("relayer: key directory is required")
	}
	if cfg.Forwarder == nil {
		return nil, fmt.Errorf("relayer: forwarder is required")
	}
	if cfg.Mode == nil {
		return nil, fmt.Errorf("relayer: mode tracker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemory()
	}
	if cfg.Window.MaxAge <= 0 {
		cfg.Window = replay.DefaultWindow()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Service{
		BaseService: commonservice.NewBase(commonservice.BaseConfig{
			Name:    ServiceName,
			Version: Version,
			Logger:  cfg.Logger,
		}),
		keys:           cfg.Keys,
		forwarder:      cfg.Forwarder,
		tracker:        cfg.Mode,
		seen:           cfg.Seen,
		store:          cfg.Store,
		metrics:        cfg.Metrics,
		window:         cfg.Window,
		requestTimeout: cfg.RequestTimeout,
		now:            cfg.Now,
	}

	s.WithStats(s.statistics)
	s.AddHealthCheck("ledger_mode", false, s.checkMode)
	if cfg.RateLimiter != nil {
		s.AddTickerWorker("ratelimit_cleanup", time.Minute, func(context.Context) error {
			cfg.RateLimiter.Cleanup()
			return nil
		})
	}
	if cfg.AuditRetention > 0 {
		job, err := newRetentionJob(s, cfg.RetentionSpec, cfg.AuditRetention)
		if err != nil {
			return nil, err
		}
		s.AddWorker(job.run)
	}

	s.registerRoutes(cfg)
	return s, nil
}

func (s *Service) statistics() map[string]any {
	return map[string]any{
		"relayed":     s.relayed.Load(),
		"rejected":    s.rejected.Load(),
		"ledger_mode": s.tracker.Current(context.Background()).String(),
		"max_age":     s.window.MaxAge.String(),
	}
}

func (s *Service) checkMode(ctx context.Context) error {
	if s.tracker.Current(ctx) == mode.Degraded {
		return fmt.Errorf("ledger mode is degraded; results are simulated")
	}
	return nil
}

func (s *Service) recordOutcome(outcome string) {
	switch outcome {
	case "submitted", "simulated":
		s.relayed.Add(1)
	default:
		s.rejected.Add(1)
	}
	if s.metrics != nil {
		s.metrics.RecordRelay(outcome)
	}
}
