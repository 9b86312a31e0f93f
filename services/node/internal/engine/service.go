package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/health"
	"github.com/aisleco/aisle-open/pkg/logger"
	"github.com/aisleco/aisle-open/pkg/service"
)

type Service struct {
	engine *Engine
	config *config.Config
	logger *logger.Logger
}

func NewService() *Service {
	return &Service{}
}

// SetLogger implements the service.LoggerAware interface
func (s *Service) SetLogger(logger *logger.Logger) {
	s.logger = logger
	if s.engine != nil {
		s.engine.SetLogger(logger)
	}
}

func (s *Service) Initialize(ctx context.Context, cfg *config.Config) error {
	s.config = cfg

	cfg.SetRestartKeys([]string{
		"node.id",
		"services.node.http_port",
		"services.node.peer_port",
		"cluster.peers",
		"cluster.routers",
		"storage.postgres.enabled",
		"storage.redis.enabled",
	})

	s.engine = NewEngine(cfg)
	if s.logger != nil {
		s.engine.SetLogger(s.logger)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

func (s *Service) Stop(ctx context.Context, gracePeriod time.Duration) error {
	if s.engine != nil {
		return s.engine.Stop(ctx)
	}
	return nil
}

func (s *Service) GetCapabilities() *service.ServiceCapabilities {
	return &service.ServiceCapabilities{
		SupportsHotReload:        false,
		SupportsGracefulShutdown: true,
		Dependencies:             []string{},
		RequiredConfig: map[string]string{
			"node.id":                 "Unique node identifier within the cluster",
			"services.node.http_port": "Client API port",
			"services.node.peer_port": "Consensus RPC port",
			"cluster.peers":           "Peer consensus addresses as id=url pairs",
			"cluster.routers":         "Peer client API addresses as id=url pairs",
		},
	}
}

func (s *Service) CollectMetrics() map[string]int64 {
	if s.engine == nil {
		return nil
	}
	return s.engine.GetMetrics()
}

func (s *Service) HealthChecks() map[string]health.CheckFunc {
	return map[string]health.CheckFunc{
		"http_server": s.checkHTTPServer,
		"consensus":   s.checkConsensus,
	}
}

func (s *Service) checkHTTPServer() error {
	if s.engine == nil {
		return fmt.Errorf("service not initialized")
	}
	return s.engine.CheckHTTPServer()
}

func (s *Service) checkConsensus() error {
	if s.engine == nil {
		return fmt.Errorf("service not initialized")
	}
	return s.engine.CheckConsensus()
}
