package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Wikid82/revalidator/internal/api/middleware"
	"github.com/Wikid82/revalidator/internal/api/routes"
	"github.com/Wikid82/revalidator/internal/cerberus"
	"github.com/Wikid82/revalidator/internal/config"
	"github.com/Wikid82/revalidator/internal/invalidator"
	"github.com/Wikid82/revalidator/internal/logger"
	"github.com/Wikid82/revalidator/internal/metrics"
	"github.com/Wikid82/revalidator/internal/revalidator"
	"github.com/Wikid82/revalidator/internal/services"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	Deps   routes.Dependencies
	cfg    config.Config
}

// NewRouter returns a gin engine with the standard middleware chain.
func NewRouter(cfg config.Config) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(cfg.Debug),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{IsDevelopment: cfg.IsDevelopment()}),
	)
	return router, nil
}

// BuildDependencies constructs every long-lived component from cfg.
func BuildDependencies(cfg config.Config) (routes.Dependencies, error) {
	store, err := services.NewConfigStore(cfg.Runtime())
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("initial configuration: %w", err)
	}
	audit := services.NewAuditLog(store.Get().Logger)
	store.Subscribe(audit.ApplyConfig)

	engine, err := NewEngine(cfg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	return routes.Dependencies{
		Gate:     cerberus.New(store),
		Store:    store,
		Audit:    audit,
		Planner:  engine,
		Executor: invalidator.NewDispatcher(NewInvalidator(cfg.Invalidation), cfg.Invalidation.Concurrency, cfg.Invalidation.Timeout),
		Notify:   services.NewNotificationService(cfg.Notify.URL),
		Registry: registry,
	}, nil
}

// NewEngine builds the decision engine from the default rules followed by
// any rules declared in the config file.
func NewEngine(cfg config.Config) (*revalidator.Engine, error) {
	extra, err := revalidator.CompileRules(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	return revalidator.NewEngine(append(revalidator.DefaultRules(), extra...)...), nil
}

// NewInvalidator returns the HTTP invalidator, or a dry-run one when no
// target URL is configured.
func NewInvalidator(cfg config.InvalidationConfig) invalidator.Invalidator {
	if cfg.TargetURL == "" {
		logger.Component("server").Warn("invalidation.target_url not set; invalidations are logged only")
		return invalidator.LogInvalidator{}
	}
	return invalidator.NewHTTPInvalidator(cfg.TargetURL, cfg.TargetSecret, cfg.SecretHeader, cfg.Timeout)
}

// New wires up the HTTP router and registers routes.
func New(cfg config.Config) (*Server, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	deps, err := BuildDependencies(cfg)
	if err != nil {
		return nil, err
	}
	routes.Register(router, deps)
	return &Server{Engine: router, Deps: deps, cfg: cfg}, nil
}

// Run starts the HTTP server and the rate-limit sweeper, and shuts both down
// when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	stopSweep, err := s.Deps.Gate.StartSweeper(cerberus.DefaultSweepSchedule)
	if err != nil {
		return err
	}
	defer stopSweep()
	defer s.Deps.Notify.Wait()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Component("server").WithField("addr", srv.Addr).Info("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
