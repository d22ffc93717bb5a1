package relayer

import (
	"net/http"

	"github.com/R3E-Network/relay_layer/internal/middleware"
)

func (s *Service) registerRoutes(cfg Config) {
	router := s.Router()
	logger := s.Logger()

	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.NewTracingMiddleware(logger).Handler)
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler)
	}
	if s.metrics != nil {
		router.Use(middleware.MetricsMiddleware(ServiceName, s.metrics))
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	var relay http.Handler = http.HandlerFunc(s.handleRelay)
	if cfg.RateLimiter != nil {
		relay = cfg.RateLimiter.Handler(relay)
	}
	router.Handle("/relayer", relay).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/relayer/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)

	if cfg.Auth != nil {
		admin := router.PathPrefix("/admin").Subrouter()
		admin.Use(cfg.Auth.Handler, middleware.RequireRole(middleware.RoleOperator))
		admin.HandleFunc("/mode", s.handleGetMode).Methods(http.MethodGet)
		admin.HandleFunc("/mode", s.handleSetMode).Methods(http.MethodPut)
		admin.HandleFunc("/accounts/{accountId}/requests", s.handleListRequests).Methods(http.MethodGet)
	}

	s.RegisterStandardRoutes()
}
