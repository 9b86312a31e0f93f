package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/aisleco/aisle-open/pkg/config"
	"github.com/aisleco/aisle-open/pkg/logger"
)

const defaultHTTPPort = 8090

// Engine answers booking help questions from a keyword knowledge base.
// Answers are deterministic; the service keeps no per-user state and can
// be restarted freely.
type Engine struct {
	config *config.Config
	logger *logger.Logger

	server *http.Server
	kb     knowledgeBase

	state struct {
		sync.Mutex
		isRunning         bool
		ongoingOperations int32
	}
	metrics struct {
		queriesAnswered int64
		topicMatches    int64
		fallbacks       int64
		errors          int64
	}
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		config: cfg,
		kb:     buildKnowledgeBase(),
	}
}

// SetLogger sets the logger for the engine
func (e *Engine) SetLogger(logger *logger.Logger) {
	e.logger = logger
}

func (e *Engine) Start(ctx context.Context) error {
	e.state.Lock()
	if e.state.isRunning {
		e.state.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.state.isRunning = true
	e.state.Unlock()

	httpPort := e.config.GetInt("services.assist.http_port", defaultHTTPPort)

	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: NewServer(e),
	}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if e.logger != nil {
				e.logger.Errorf("HTTP server error: %v", err)
			}
			atomic.AddInt64(&e.metrics.errors, 1)
		}
	}()

	if e.logger != nil {
		e.logger.Infof("Assist service started on port %d (%d topics)", httpPort, len(e.kb))
	}
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.state.Lock()
	if !e.state.isRunning {
		e.state.Unlock()
		return nil
	}
	e.state.isRunning = false
	e.state.Unlock()

	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil && e.logger != nil {
			e.logger.Warnf("HTTP server shutdown: %v", err)
		}
	}
	return nil
}

// Answer resolves a query against the knowledge base, falling back to the
// generic guidance text when nothing matches.
func (e *Engine) Answer(query string) string {
	atomic.AddInt64(&e.metrics.queriesAnswered, 1)

	name, response, ok := e.kb.answer(query)
	if !ok {
		atomic.AddInt64(&e.metrics.fallbacks, 1)
		return fallbackAnswer
	}

	atomic.AddInt64(&e.metrics.topicMatches, 1)
	if e.logger != nil {
		e.logger.Debugf("Matched topic %q", name)
	}
	return response
}

func (e *Engine) GetMetrics() map[string]int64 {
	return map[string]int64{
		"queries_answered": atomic.LoadInt64(&e.metrics.queriesAnswered),
		"topic_matches":    atomic.LoadInt64(&e.metrics.topicMatches),
		"fallbacks":        atomic.LoadInt64(&e.metrics.fallbacks),
		"errors":           atomic.LoadInt64(&e.metrics.errors),
	}
}

func (e *Engine) CheckHTTPServer() error {
	e.state.Lock()
	defer e.state.Unlock()
	if !e.state.isRunning {
		return fmt.Errorf("service not initialized")
	}
	if e.server == nil {
		return fmt.Errorf("HTTP server not initialized")
	}
	return nil
}

func (e *Engine) TrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, 1)
}

func (e *Engine) UntrackOperation() {
	atomic.AddInt32(&e.state.ongoingOperations, -1)
}
