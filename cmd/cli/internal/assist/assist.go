package assist

import (
	"context"
	"fmt"

	"github.com/aisleco/aisle-open/cmd/cli/internal/config"
)

// Ask sends a help question through the cluster to the assist service
func Ask(query string) error {
	c, err := config.NewClient()
	if err != nil {
		return err
	}

	fmt.Println("Consulting assistant...")
	answer, err := c.Ask(context.Background(), query)
	if err != nil {
		return fmt.Errorf("assist failed: %v", err)
	}

	fmt.Printf("\nQ: %s\n\nA: %s\n", query, answer)
	return nil
}
