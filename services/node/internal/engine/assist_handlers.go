package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// AssistHandlers proxies help questions to the assist service with a small
// summary of the caller's state. Assist traffic is not replicated and not
// retried across nodes.
type AssistHandlers struct {
	engine *Engine
}

// NewAssistHandlers creates a new instance of AssistHandlers
func NewAssistHandlers(engine *Engine) *AssistHandlers {
	return &AssistHandlers{engine: engine}
}

// Assist handles POST /api/v1/assist
func (ah *AssistHandlers) Assist(w http.ResponseWriter, r *http.Request) {
	ah.engine.TrackOperation()
	defer ah.engine.UntrackOperation()

	username := principalFromContext(r.Context())

	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ah.writeJSONResponse(w, http.StatusBadRequest, AssistResponse{
			Status: StatusError,
			Answer: "Invalid request body",
		})
		return
	}

	fullContext := fmt.Sprintf("%s\n\nCurrent System State:\n%s", req.Context, ah.buildContext(username))

	payload, err := json.Marshal(map[string]string{
		"request_id": uuid.NewString(),
		"query":      req.Query,
		"context":    fullContext,
	})
	if err != nil {
		ah.writeJSONResponse(w, http.StatusInternalServerError, AssistResponse{
			Status: StatusError,
			Answer: fmt.Sprintf("LLM service unavailable: %v", err),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		ah.engine.assistURL+"/api/v1/assist", bytes.NewReader(payload))
	if err != nil {
		ah.writeJSONResponse(w, http.StatusBadGateway, AssistResponse{
			Status: StatusError,
			Answer: fmt.Sprintf("LLM service unavailable: %v", err),
		})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := ah.engine.forward.Do(httpReq)
	if err != nil {
		ah.writeJSONResponse(w, http.StatusBadGateway, AssistResponse{
			Status: StatusError,
			Answer: fmt.Sprintf("LLM service unavailable: %v", err),
		})
		return
	}
	defer resp.Body.Close()

	var answer AssistResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&answer); err != nil {
		ah.writeJSONResponse(w, http.StatusBadGateway, AssistResponse{
			Status: StatusError,
			Answer: fmt.Sprintf("LLM service unavailable: %v", err),
		})
		return
	}

	ah.writeJSONResponse(w, http.StatusOK, answer)
}

// buildContext summarizes the caller's view for the assist service
func (ah *AssistHandlers) buildContext(username string) string {
	movies := ah.engine.machine.Movies()
	bookings := ah.engine.machine.UserBookings(username)
	return fmt.Sprintf("User: %s\nAvailable Movies: %d\nUser's Bookings: %d\n",
		username, len(movies), len(bookings))
}

func (ah *AssistHandlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
