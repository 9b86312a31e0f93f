package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aisleco/aisle-open/services/node/internal/auth"
)

// AuthHandlers contains the authentication endpoint handlers
type AuthHandlers struct {
	engine *Engine
}

// NewAuthHandlers creates a new instance of AuthHandlers
func NewAuthHandlers(engine *Engine) *AuthHandlers {
	return &AuthHandlers{engine: engine}
}

// Login handles POST /api/v1/auth/login
func (ah *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	ah.engine.TrackOperation()
	defer ah.engine.UntrackOperation()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ah.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if req.Username == "" || req.Password == "" {
		ah.writeErrorResponse(w, http.StatusBadRequest, "Username and password are required", "")
		return
	}

	if ah.engine.logger != nil {
		ah.engine.logger.Infof("Login attempt: %s", req.Username)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token, err := ah.engine.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			ah.writeJSONResponse(w, http.StatusUnauthorized, LoginResponse{
				Status:  StatusError,
				Token:   "",
				Message: "Invalid credentials",
			})
			return
		}
		ah.writeErrorResponse(w, http.StatusInternalServerError, "Login failed", err.Error())
		return
	}

	ah.writeJSONResponse(w, http.StatusOK, LoginResponse{
		Status:  StatusSuccess,
		Token:   token,
		Message: "Login successful",
	})
}

// Logout handles POST /api/v1/auth/logout
func (ah *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	ah.engine.TrackOperation()
	defer ah.engine.UntrackOperation()

	token := extractBearerToken(r)
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// logout of an unknown or expired token still succeeds
	if err := ah.engine.auth.Logout(ctx, token); err != nil && ah.engine.logger != nil {
		ah.engine.logger.Warnf("Logout revocation failed: %v", err)
	}

	ah.writeJSONResponse(w, http.StatusOK, StatusResponse{
		Status:  StatusSuccess,
		Message: "Logged out successfully",
	})
}

func (ah *AuthHandlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (ah *AuthHandlers) writeErrorResponse(w http.ResponseWriter, statusCode int, message, error string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
		Status:  StatusFailure,
	}
	json.NewEncoder(w).Encode(response)
}
