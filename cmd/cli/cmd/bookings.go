package main

import (
	"github.com/spf13/cobra"

	"github.com/aisleco/aisle-open/cmd/cli/internal/bookings"
)

// bookingsCmd represents the bookings command
var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Booking commands",
	Long:  `Commands for booking seats, cancelling bookings and paying for them.`,
}

// bookingsListCmd represents the bookings list command
var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your bookings",
	Long:  `List all bookings of the logged-in user in creation order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bookings.List()
	},
}

// bookingsBookCmd represents the bookings book command
var bookingsBookCmd = &cobra.Command{
	Use:   "book [movie-id] [seats]",
	Short: "Book seats for a movie",
	Long: `Book seats for a movie. Seats are given as a comma-separated list of
seat numbers, e.g. "1,2,3". All seats are booked atomically: if any
seat is taken, nothing is booked.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bookings.Book(args[0], args[1])
	},
}

// bookingsCancelCmd represents the bookings cancel command
var bookingsCancelCmd = &cobra.Command{
	Use:   "cancel [booking-id]",
	Short: "Cancel a booking",
	Long:  `Cancel one of your bookings by its ID. Seats return to the pool.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return bookings.Cancel(args[0])
	},
}

// bookingsPayCmd represents the bookings pay command
var bookingsPayCmd = &cobra.Command{
	Use:   "pay [booking-id]",
	Short: "Pay for a booking",
	Long:  `Record a payment for a booking by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, _ := cmd.Flags().GetString("method")
		return bookings.Pay(args[0], method)
	},
}

func init() {
	bookingsPayCmd.Flags().String("method", "card", "Payment method (card, upi, wallet)")

	bookingsCmd.AddCommand(bookingsListCmd)
	bookingsCmd.AddCommand(bookingsBookCmd)
	bookingsCmd.AddCommand(bookingsCancelCmd)
	bookingsCmd.AddCommand(bookingsPayCmd)
}
