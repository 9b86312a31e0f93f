package bookings

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aisleco/aisle-open/cmd/cli/internal/config"
)

// List prints the logged-in user's bookings in creation order
func List() error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	bookings, err := c.MyBookings(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get bookings: %v", err)
	}

	if len(bookings) == 0 {
		fmt.Println("ℹ️  No bookings found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Println()
	fmt.Fprintln(w, "Booking ID\tMovie\tSeats\tPrice\tStatus\tBooked")
	fmt.Fprintln(w, "----------\t-----\t-----\t-----\t------\t------")

	for _, booking := range bookings {
		symbol := "✓"
		if booking.Status != "confirmed" {
			symbol = "✗"
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\t$%.2f\t%s\t%s\n",
			symbol,
			booking.BookingID,
			booking.MovieTitle,
			formatSeats(booking.Seats),
			booking.Price,
			strings.ToUpper(booking.Status),
			booking.Timestamp.Local().Format("2006-01-02 15:04"),
		)
	}

	_ = w.Flush()
	fmt.Println()
	return nil
}

// Book reserves seats and prints the confirmation. The cluster applies
// the booking exactly once even when the call is retried internally.
func Book(movieID, seatsArg string) error {
	seats, err := parseSeats(seatsArg)
	if err != nil {
		return err
	}

	c, err := config.NewClient()
	if err != nil {
		return err
	}

	fmt.Println("Processing booking...")
	result, err := c.Book(context.Background(), movieID, seats)
	if err != nil {
		return fmt.Errorf("booking failed: %v", err)
	}

	fmt.Println("\n✅ Booking successful!")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Booking ID:\t%s\n", result.BookingID)
	if result.Details != nil {
		fmt.Fprintf(w, "Movie:\t%s\n", result.Details.MovieTitle)
		fmt.Fprintf(w, "Seats:\t%s\n", formatSeats(result.Details.Seats))
		fmt.Fprintf(w, "Total Price:\t$%.2f\n", result.Details.Price)
		fmt.Fprintf(w, "Status:\t%s\n", result.Details.Status)
	}
	_ = w.Flush()

	fmt.Printf("\nPay with: aisle bookings pay %s\n", result.BookingID)
	return nil
}

// Cancel cancels a booking and prints the refund
func Cancel(bookingID string) error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	fmt.Println("Processing cancellation...")
	result, err := c.Cancel(context.Background(), bookingID)
	if err != nil {
		return fmt.Errorf("cancellation failed: %v", err)
	}

	fmt.Println("\n✅ Booking cancelled!")
	fmt.Printf("Refund Amount: $%.2f\n", result.RefundAmount)
	fmt.Println("Refund will be processed in 5-7 business days")
	return nil
}

// Pay records a payment for a booking
func Pay(bookingID, method string) error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	fmt.Println("Processing payment...")
	result, err := c.Pay(context.Background(), bookingID, method)
	if err != nil {
		return fmt.Errorf("payment failed: %v", err)
	}

	fmt.Println("\n✅ Payment successful!")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Payment ID:\t%s\n", result.PaymentID)
	fmt.Fprintf(w, "Booking ID:\t%s\n", bookingID)
	if method != "" {
		fmt.Fprintf(w, "Method:\t%s\n", method)
	}
	_ = w.Flush()
	return nil
}

// parseSeats parses a comma-separated seat list like "1,2,3"
func parseSeats(arg string) ([]int, error) {
	var seats []int
	for _, part := range strings.Split(arg, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seat, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid seat number %q", part)
		}
		seats = append(seats, seat)
	}
	if len(seats) == 0 {
		return nil, fmt.Errorf("at least one seat number is required")
	}
	return seats, nil
}

func formatSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, seat := range seats {
		parts[i] = strconv.Itoa(seat)
	}
	return strings.Join(parts, ", ")
}
