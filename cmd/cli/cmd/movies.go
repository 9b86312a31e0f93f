package main

import (
	"github.com/spf13/cobra"

	"github.com/aisleco/aisle-open/cmd/cli/internal/movies"
)

// moviesCmd represents the movies command
var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "Movie catalog commands",
	Long:  `Commands for browsing the movie catalog and seat availability.`,
}

// moviesListCmd represents the movies list command
var moviesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available movies",
	Long:  `List all movies with showtime, price and seat availability.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return movies.List()
	},
}

// moviesSeatsCmd represents the movies seats command
var moviesSeatsCmd = &cobra.Command{
	Use:   "seats [movie-id]",
	Short: "Show available seats for a movie",
	Long:  `List the free seat numbers of one movie by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return movies.Seats(args[0])
	},
}

func init() {
	moviesCmd.AddCommand(moviesListCmd)
	moviesCmd.AddCommand(moviesSeatsCmd)
}
