package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/health"
	"github.com/aisleco/aisle-open/pkg/logger"
	"github.com/google/uuid"
)

// ServiceState tracks the lifecycle phase of a service
type ServiceState string

const (
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateStopped  ServiceState = "stopped"
)

// ServiceCapabilities describes what a service supports and requires
type ServiceCapabilities struct {
	SupportsHotReload        bool
	SupportsGracefulShutdown bool
	Dependencies             []string
	RequiredConfig           map[string]string
}

// Service interface that all services must implement
type Service interface {
	// Initialize is called after configuration is loaded but before starting
	Initialize(ctx context.Context, config *config.Config) error

	// Start begins the service's main work
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service
	Stop(ctx context.Context, gracePeriod time.Duration) error

	// GetCapabilities returns the service capabilities
	GetCapabilities() *ServiceCapabilities

	// CollectMetrics returns current service metrics
	CollectMetrics() map[string]int64

	// HealthChecks returns service-specific health check functions
	HealthChecks() map[string]health.CheckFunc
}

// LoggerAware is an optional interface that services can implement
// if they need access to the logger
type LoggerAware interface {
	SetLogger(logger *logger.Logger)
}

// BaseService provides common lifecycle management for all services:
// configuration loading, logger wiring, periodic health checks, and
// signal-driven graceful shutdown.
type BaseService struct {
	// Service identification
	Name       string
	Version    string
	InstanceID string

	// Configuration source
	ConfigPath string

	// Core components
	Logger        *logger.Logger
	Config        *config.Config
	HealthChecker *health.Checker

	// State management
	mu        sync.RWMutex
	state     ServiceState
	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once

	// Service implementation
	impl Service
}

// NewBaseService creates a new base service instance. configPath may be empty,
// in which case configuration comes from defaults and AISLE__* environment
// variables only.
func NewBaseService(name, version, configPath string, impl Service) *BaseService {
	return &BaseService{
		Name:          name,
		Version:       version,
		InstanceID:    uuid.New().String(),
		ConfigPath:    configPath,
		Logger:        logger.New(name, version),
		Config:        config.New(),
		HealthChecker: health.NewChecker(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		impl:          impl,
	}
}

// Run starts the service and manages its lifecycle until shutdown
func (s *BaseService) Run(ctx context.Context) error {
	s.setState(StateStarting)

	if s.ConfigPath != "" {
		if err := s.Config.LoadFile(s.ConfigPath); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		s.Logger.Infof("Configuration loaded from %s", s.ConfigPath)
	} else {
		s.Config.ApplyEnvOverrides()
		s.Logger.Infof("No configuration file given, using defaults and environment")
	}

	if loggerAware, ok := s.impl.(LoggerAware); ok {
		loggerAware.SetLogger(s.Logger)
	}

	if caps := s.impl.GetCapabilities(); caps != nil && len(caps.Dependencies) > 0 {
		s.Logger.Infof("Service dependencies: %v", caps.Dependencies)
	}

	if err := s.impl.Initialize(ctx, s.Config); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	s.Logger.Infof("Service implementation initialized successfully")

	go s.healthCheckLoop(ctx)
	go s.metricsLoop(ctx)

	if err := s.impl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	s.setState(StateRunning)
	s.Logger.Info("Service started successfully")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		s.Logger.Info("Received shutdown signal")
	case <-s.stopCh:
		s.Logger.Info("Received stop command")
	case <-ctx.Done():
		s.Logger.Info("Context cancelled")
	}

	s.setState(StateStopping)
	return s.shutdown(ctx)
}

// Stop requests a graceful shutdown and waits for it to complete
func (s *BaseService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.stoppedCh
}

// State returns the current lifecycle state
func (s *BaseService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *BaseService) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	checks := s.impl.HealthChecks()

	for {
		select {
		case <-ticker.C:
			for name, checkFunc := range checks {
				s.HealthChecker.RunCheck(name, checkFunc)
			}
			if status := s.HealthChecker.GetOverallStatus(); status != health.StatusHealthy {
				s.Logger.Warnf("Health status: %s", status)
			}

		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *BaseService) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m := s.Metrics()
			s.Logger.Debugf("Metrics: goroutines=%d memory_bytes=%d custom=%d",
				m["goroutines"], m["memory_usage_bytes"], len(m)-2)

		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Metrics merges runtime metrics with the implementation's counters
func (s *BaseService) Metrics() map[string]int64 {
	metrics := map[string]int64{
		"memory_usage_bytes": getMemoryUsage(),
		"goroutines":         getGoroutineCount(),
	}
	for k, v := range s.impl.CollectMetrics() {
		metrics[k] = v
	}
	return metrics
}

func (s *BaseService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *BaseService) shutdown(ctx context.Context) error {
	s.Logger.Info("Starting graceful shutdown")

	gracePeriod := 30 * time.Second
	if err := s.impl.Stop(ctx, gracePeriod); err != nil {
		s.Logger.Errorf("Service implementation shutdown error: %v", err)
	}

	close(s.stoppedCh)
	s.setState(StateStopped)
	s.Logger.Info("Service stopped")

	return nil
}
