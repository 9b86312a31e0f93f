package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalContextKey contextKey = "principal"

// Middleware contains the authentication middleware
type Middleware struct {
	engine *Engine
}

func NewMiddleware(engine *Engine) *Middleware {
	return &Middleware{engine: engine}
}

// AuthenticationMiddleware validates the bearer token and stores the
// authenticated principal in the request context.
func (m *Middleware) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkipAuth(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			m.writeErrorResponse(w, http.StatusUnauthorized, "Authorization token is required", "")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		username, err := m.engine.auth.Validate(ctx, token)
		if err != nil {
			m.writeErrorResponse(w, http.StatusUnauthorized, "Invalid or expired token", "")
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), principalContextKey, username))
		next.ServeHTTP(w, r)
	})
}

// shouldSkipAuth determines if authentication should be skipped for a route
func (m *Middleware) shouldSkipAuth(r *http.Request) bool {
	path := r.URL.Path
	method := r.Method

	if method == http.MethodOptions {
		return true
	}
	if strings.HasSuffix(path, "/health") && method == http.MethodGet {
		return true
	}
	if strings.HasSuffix(path, "/auth/login") && method == http.MethodPost {
		return true
	}
	// logout validates its own token and is idempotent
	if strings.HasSuffix(path, "/auth/logout") && method == http.MethodPost {
		return true
	}
	if strings.HasSuffix(path, "/cluster/status") && method == http.MethodGet {
		return true
	}
	// websocket endpoints authenticate in-handler via query parameter
	if strings.HasPrefix(path, "/ws/") {
		return true
	}
	return false
}

func principalFromContext(ctx context.Context) string {
	username, _ := ctx.Value(principalContextKey).(string)
	return username
}

// extractBearerToken extracts the bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// writeErrorResponse writes an error response in JSON format
func (m *Middleware) writeErrorResponse(w http.ResponseWriter, statusCode int, message, error string) {
	if m.engine.logger != nil {
		if statusCode >= 500 {
			m.engine.logger.Errorf("HTTP %d - %s: %s", statusCode, message, error)
		} else if statusCode >= 400 {
			m.engine.logger.Warnf("HTTP %d - %s: %s", statusCode, message, error)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
		Status:  StatusFailure,
	}
	json.NewEncoder(w).Encode(response)
}
