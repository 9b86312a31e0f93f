package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type Server struct {
	engine         *Engine
	router         *mux.Router
	authHandler    *AuthHandlers
	queryHandler   *QueryHandlers
	commandHandler *CommandHandlers
	assistHandler  *AssistHandlers
	clusterHandler *ClusterHandlers
	eventsHandler  *EventsHandlers
	middleware     *Middleware
}

func NewServer(engine *Engine) *Server {
	s := &Server{
		engine:         engine,
		router:         mux.NewRouter(),
		authHandler:    NewAuthHandlers(engine),
		queryHandler:   NewQueryHandlers(engine),
		commandHandler: NewCommandHandlers(engine),
		assistHandler:  NewAssistHandlers(engine),
		clusterHandler: NewClusterHandlers(engine),
		eventsHandler:  NewEventsHandlers(engine),
		middleware:     NewMiddleware(engine),
	}
	s.setupRoutes()
	s.setupMiddleware()
	return s
}

func (s *Server) setupMiddleware() {
	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Request logging middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if s.engine.logger != nil {
				s.engine.logger.Debugf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
			}
		})
	})

	s.router.Use(s.middleware.AuthenticationMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Authentication endpoints
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.authHandler.Login).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.authHandler.Logout).Methods(http.MethodPost)

	// Read, write and assist endpoints
	api.HandleFunc("/query", s.queryHandler.Query).Methods(http.MethodGet)
	api.HandleFunc("/command", s.commandHandler.Command).Methods(http.MethodPost)
	api.HandleFunc("/assist", s.assistHandler.Assist).Methods(http.MethodPost)

	// Cluster introspection
	api.HandleFunc("/cluster/status", s.clusterHandler.Status).Methods(http.MethodGet)

	// Live streams
	s.router.HandleFunc("/ws/events", s.eventsHandler.Events).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/logs", s.eventsHandler.Logs).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "node",
		"node_id":   s.engine.nodeID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
