package engine

import (
	"encoding/json"
	"net/http"
)

// QueryHandlers contains the read endpoint handlers. Reads are served from
// the local state machine: any node answers, leader or not, with a
// prefix-consistent view.
type QueryHandlers struct {
	engine *Engine
}

// NewQueryHandlers creates a new instance of QueryHandlers
func NewQueryHandlers(engine *Engine) *QueryHandlers {
	return &QueryHandlers{engine: engine}
}

// Query handles GET /api/v1/query
func (qh *QueryHandlers) Query(w http.ResponseWriter, r *http.Request) {
	qh.engine.TrackOperation()
	defer qh.engine.UntrackOperation()

	username := principalFromContext(r.Context())
	queryType := r.URL.Query().Get("type")

	items := []DataItem{}
	switch queryType {
	case "movie_list":
		for _, movie := range qh.engine.machine.Movies() {
			items = append(items, DataItem{ID: movie.ID, Data: mustJSON(movie)})
		}

	case "available_seats":
		movieID := r.URL.Query().Get("movie_id")
		seats, _ := qh.engine.machine.AvailableSeats(movieID)
		items = append(items, DataItem{
			ID: movieID,
			Data: mustJSON(map[string][]int{
				"available_seats": seats,
			}),
		})

	case "my_bookings":
		for _, b := range qh.engine.machine.UserBookings(username) {
			items = append(items, DataItem{ID: b.BookingID, Data: mustJSON(b)})
		}

	default:
		qh.writeJSONResponse(w, http.StatusBadRequest, GetResponse{
			Status:  StatusError,
			Items:   []DataItem{},
			Message: "Unknown query type",
		})
		return
	}

	qh.writeJSONResponse(w, http.StatusOK, GetResponse{
		Status:  StatusSuccess,
		Items:   items,
		Message: "Query successful",
	})
}

func (qh *QueryHandlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
