package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aisleco/aisle-open/services/node/internal/booking"
	"github.com/aisleco/aisle-open/services/node/internal/consensus"
)

// forwardedHeader marks a write already forwarded once. A receiver that is
// not leader must not forward again; it answers NotLeader and lets the
// originating router try its next peer. Hop limit 1 prevents cycles.
const forwardedHeader = "X-Aisle-Forwarded"

const (
	notLeaderMessage = "Not the leader. Please retry - request will be forwarded."
	noLeaderMessage  = "No leader available. System is electing a new leader. Please try again in a few seconds."
)

// CommandHandlers contains the write endpoint handlers
type CommandHandlers struct {
	engine *Engine
}

// NewCommandHandlers creates a new instance of CommandHandlers
func NewCommandHandlers(engine *Engine) *CommandHandlers {
	return &CommandHandlers{engine: engine}
}

// Command handles POST /api/v1/command. The local node submits when it is
// leader; otherwise the request fans out to peer routers and the first
// non-NotLeader reply wins.
func (ch *CommandHandlers) Command(w http.ResponseWriter, r *http.Request) {
	ch.engine.TrackOperation()
	defer ch.engine.UntrackOperation()

	username := principalFromContext(r.Context())

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ch.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	// the idempotency key is minted before any forwarding so every node
	// that ends up applying this write deduplicates on the same id
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	cmd, ok := buildCommand(&req, username)
	if !ok {
		ch.writeJSONResponse(w, http.StatusBadRequest, StatusResponse{
			Status:  StatusError,
			Message: "Unknown operation type",
		})
		return
	}

	if !ch.engine.node.IsLeader() {
		if r.Header.Get(forwardedHeader) != "" {
			ch.writeJSONResponse(w, http.StatusOK, StatusResponse{
				Status:  StatusError,
				Message: notLeaderMessage,
			})
			return
		}
		ch.forwardToLeader(w, r, &req)
		return
	}

	ch.submit(w, r, &req, cmd)
}

func (ch *CommandHandlers) submit(w http.ResponseWriter, r *http.Request, req *CommandRequest, cmd *booking.Command) {
	cmd.SubmittedAt = time.Now().UTC()
	data, err := cmd.Encode()
	if err != nil {
		ch.writeErrorResponse(w, http.StatusInternalServerError, "Failed to encode command", err.Error())
		return
	}

	if ch.engine.logger != nil {
		ch.engine.logger.Infof("Submitting %s (request %s) for %s", cmd.Operation, cmd.RequestID, cmd.Username)
	}

	resultBytes, err := ch.engine.node.Submit(r.Context(), data)
	if err != nil {
		if _, isNotLeader := consensus.IsNotLeader(err); isNotLeader {
			// leadership moved between the role check and the submit
			if r.Header.Get(forwardedHeader) == "" {
				ch.forwardToLeader(w, r, req)
				return
			}
			ch.writeJSONResponse(w, http.StatusOK, StatusResponse{
				Status:  StatusError,
				Message: notLeaderMessage,
			})
			return
		}
		if errors.Is(err, consensus.ErrLostLeadership) {
			ch.writeJSONResponse(w, http.StatusServiceUnavailable, StatusResponse{
				Status:  StatusError,
				Message: "Leadership lost before commit. Please retry with the same request_id.",
			})
			return
		}
		if errors.Is(err, consensus.ErrReplicationTimeout) {
			ch.writeJSONResponse(w, http.StatusServiceUnavailable, StatusResponse{
				Status:  StatusError,
				Message: "Replication timed out. Please retry with the same request_id.",
			})
			return
		}
		ch.writeErrorResponse(w, http.StatusInternalServerError, "Command submission failed", err.Error())
		return
	}

	result, err := booking.DecodeResult(resultBytes)
	if err != nil {
		ch.writeErrorResponse(w, http.StatusInternalServerError, "Invalid command result", err.Error())
		return
	}

	if result.Status != booking.StatusSuccess {
		message := result.Message
		if message == "" {
			message = "Operation failed"
		}
		ch.writeJSONResponse(w, http.StatusOK, StatusResponse{
			Status:  StatusError,
			Message: message,
		})
		return
	}

	// success replies carry the full result envelope in the message
	ch.writeJSONResponse(w, http.StatusOK, StatusResponse{
		Status:  StatusSuccess,
		Message: string(resultBytes),
	})
}

// forwardToLeader fans the write out to every peer router in parallel and
// returns the first reply that is not a NotLeader rejection.
func (ch *CommandHandlers) forwardToLeader(w http.ResponseWriter, r *http.Request, req *CommandRequest) {
	atomic.AddInt64(&ch.engine.metrics.writesForwarded, 1)

	peers := ch.engine.routerOrder
	if len(peers) == 0 {
		ch.writeJSONResponse(w, http.StatusServiceUnavailable, StatusResponse{
			Status:  StatusError,
			Message: noLeaderMessage,
		})
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		ch.writeErrorResponse(w, http.StatusInternalServerError, "Failed to encode request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	replies := make(chan *StatusResponse, len(peers))
	for _, peer := range peers {
		go func(peer string) {
			replies <- ch.forwardOnce(ctx, peer, r.Header.Get("Authorization"), body)
		}(peer)
	}

	for range peers {
		select {
		case reply := <-replies:
			if reply == nil {
				continue
			}
			// a NotLeader rejection means "try another peer"; anything
			// else is the leader's verdict
			if reply.Status == StatusSuccess || !strings.Contains(reply.Message, "Not the leader") {
				ch.writeJSONResponse(w, http.StatusOK, reply)
				return
			}
		case <-ctx.Done():
			ch.writeJSONResponse(w, http.StatusServiceUnavailable, StatusResponse{
				Status:  StatusError,
				Message: noLeaderMessage,
			})
			return
		}
	}

	ch.writeJSONResponse(w, http.StatusServiceUnavailable, StatusResponse{
		Status:  StatusError,
		Message: noLeaderMessage,
	})
}

func (ch *CommandHandlers) forwardOnce(ctx context.Context, peer, authorization string, body []byte) *StatusResponse {
	addr, ok := ch.engine.routerAddrs[peer]
	if !ok {
		return nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/v1/command", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(forwardedHeader, "1")
	if authorization != "" {
		httpReq.Header.Set("Authorization", authorization)
	}

	resp, err := ch.engine.forward.Do(httpReq)
	if err != nil {
		if ch.engine.logger != nil {
			ch.engine.logger.Debugf("Forward to %s failed: %v", peer, err)
		}
		return nil
	}
	defer resp.Body.Close()

	var reply StatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		if ch.engine.logger != nil {
			ch.engine.logger.Debugf("Forward to %s returned an unreadable reply: %v", peer, err)
		}
		return nil
	}
	if ch.engine.logger != nil {
		ch.engine.logger.Infof("Forwarded write answered by %s: %s", peer, reply.Status)
	}
	return &reply
}

// buildCommand translates a client write into a replicated command
func buildCommand(req *CommandRequest, username string) (*booking.Command, bool) {
	switch req.Type {
	case "book_ticket":
		return &booking.Command{
			Operation: booking.OpBookTicket,
			RequestID: req.RequestID,
			Username:  username,
			MovieID:   req.MovieID,
			Seats:     req.Seats,
		}, true
	case "cancel_booking":
		return &booking.Command{
			Operation: booking.OpCancelBooking,
			RequestID: req.RequestID,
			Username:  username,
			BookingID: req.BookingID,
		}, true
	case "payment":
		method := req.PaymentMethod
		if method == "" {
			method = "card"
		}
		return &booking.Command{
			Operation:     booking.OpProcessPayment,
			RequestID:     req.RequestID,
			BookingID:     req.BookingID,
			PaymentMethod: method,
		}, true
	default:
		return nil, false
	}
}

func (ch *CommandHandlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (ch *CommandHandlers) writeErrorResponse(w http.ResponseWriter, statusCode int, message, error string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
		Status:  StatusFailure,
	}
	json.NewEncoder(w).Encode(response)
}
