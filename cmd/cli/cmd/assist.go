package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aisleco/aisle-open/cmd/cli/internal/assist"
)

// assistCmd represents the assist command
var assistCmd = &cobra.Command{
	Use:   "assist",
	Short: "Customer assistant commands",
	Long:  `Commands for asking the customer assistant about bookings, payments and shows.`,
}

// assistAskCmd represents the assist ask command
var assistAskCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask the assistant a question",
	Long: `Ask the customer assistant a free-form question, for example:

  aisle assist ask how do I cancel my booking`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return assist.Ask(strings.Join(args, " "))
	},
}

func init() {
	assistCmd.AddCommand(assistAskCmd)
}
