package cluster

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aisleco/aisle-open/cmd/cli/internal/config"
)

// Status asks every configured endpoint for its own view of the cluster
// and prints one row per node. Disagreeing rows usually mean an election
// is in progress.
func Status() error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Println()
	fmt.Fprintln(w, "Endpoint\tNode\tRole\tTerm\tLeader\tCommit\tApplied\tBookings")
	fmt.Fprintln(w, "--------\t----\t----\t----\t------\t------\t-------\t--------")

	for _, endpoint := range c.Endpoints() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		status, err := c.NodeStatusOf(ctx, endpoint)
		cancel()

		if err != nil {
			fmt.Fprintf(w, "%s\tunreachable\t-\t-\t-\t-\t-\t-\n", endpoint)
			continue
		}

		leader := status.LeaderID
		if leader == "" {
			leader = "(none)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%d\n",
			endpoint,
			status.NodeID,
			status.Role,
			status.Term,
			leader,
			status.Commit,
			status.Applied,
			status.Bookings,
		)
	}

	_ = w.Flush()
	fmt.Println()
	return nil
}

// Logs tails the log stream of the first reachable node until interrupted
func Logs() error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := c.WatchLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}

	fmt.Println("Tailing node logs (Ctrl-C to stop)...")
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				fmt.Println("Log stream closed")
				return nil
			}
			fmt.Printf("%s  [%s] %-5s %s\n",
				entry.Time.Local().Format("15:04:05.000"),
				entry.Service,
				entry.Level,
				entry.Message,
			)
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		}
	}
}

// Watch streams live booking events from the cluster until interrupted
func Watch() error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := c.WatchEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %v", err)
	}

	fmt.Println("Watching cluster events (Ctrl-C to stop)...")
	for {
		select {
		case event, ok := <-events:
			if !ok {
				fmt.Println("Event stream closed")
				return nil
			}
			fmt.Printf("%s  %-18s %s\n",
				event.Time.Local().Format("15:04:05"),
				event.Type,
				event.Message,
			)
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		}
	}
}
