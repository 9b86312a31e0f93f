package movies

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aisleco/aisle-open/cmd/cli/internal/config"
)

// seatPreviewLimit caps how many seat numbers are printed before the
// list is summarized.
const seatPreviewLimit = 30

// List prints the movie catalog with availability
func List() error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	movies, err := c.Movies(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get movies: %v", err)
	}

	if len(movies) == 0 {
		fmt.Println("ℹ️  No movies available")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Println()
	fmt.Fprintln(w, "Movie ID\tTitle\tShowtime\tPrice\tAvailability")
	fmt.Fprintln(w, "--------\t-----\t--------\t-----\t------------")

	for _, movie := range movies {
		fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t%d of %d seats\n",
			movie.ID,
			movie.Title,
			movie.Showtime,
			movie.Price,
			movie.AvailableSeats,
			movie.TotalSeats,
		)
	}

	_ = w.Flush()
	fmt.Println()
	return nil
}

// Seats prints the free seat numbers of one movie
func Seats(movieID string) error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	seats, err := c.AvailableSeats(context.Background(), movieID)
	if err != nil {
		return fmt.Errorf("failed to get seats: %v", err)
	}

	if len(seats) == 0 {
		fmt.Printf("ℹ️  No seats available for %s\n", movieID)
		return nil
	}

	fmt.Printf("\nAvailable seats for %s (%d total):\n", movieID, len(seats))
	if len(seats) > seatPreviewLimit {
		fmt.Printf("  %s... (and %d more)\n", formatSeats(seats[:seatPreviewLimit]), len(seats)-seatPreviewLimit)
	} else {
		fmt.Printf("  %s\n", formatSeats(seats))
	}
	fmt.Println()
	return nil
}

func formatSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, seat := range seats {
		parts[i] = strconv.Itoa(seat)
	}
	return strings.Join(parts, ", ")
}
