package booking

// Movie is the mutable per-show seat inventory
type Movie struct {
	Title          string  `json:"title"`
	TotalSeats     int     `json:"total_seats"`
	AvailableSeats []int   `json:"available_seats"`
	Price          float64 `json:"price"`
	Showtime       string  `json:"showtime"`
}

// MovieSummary is the read-model row returned by movie listings
type MovieSummary struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	AvailableSeats int     `json:"available_seats"`
	TotalSeats     int     `json:"total_seats"`
	Price          float64 `json:"price"`
	Showtime       string  `json:"showtime"`
}

func seatRange(n int) []int {
	seats := make([]int, n)
	for i := range seats {
		seats[i] = i + 1
	}
	return seats
}

// seedCatalog returns the fixed demo catalog every node boots with
func seedCatalog() (map[string]*Movie, []string) {
	movies := map[string]*Movie{
		"movie1": {
			Title:          "The Matrix Reloaded",
			TotalSeats:     100,
			AvailableSeats: seatRange(100),
			Price:          15.0,
			Showtime:       "2025-11-20 19:00",
		},
		"movie2": {
			Title:          "Inception Dreams",
			TotalSeats:     80,
			AvailableSeats: seatRange(80),
			Price:          12.0,
			Showtime:       "2025-11-20 21:00",
		},
		"movie3": {
			Title:          "Interstellar Journey",
			TotalSeats:     120,
			AvailableSeats: seatRange(120),
			Price:          18.0,
			Showtime:       "2025-11-21 18:00",
		},
	}
	order := []string{"movie1", "movie2", "movie3"}
	return movies, order
}
