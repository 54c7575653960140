package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chezu/antler/internal/card"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a JSON file of cards",
	Long: `Validate parses a JSON array of cards and checks every field and
cross-field invariant. It reports the first violation, including the index of
the offending card, or a summary of the valid cards.`,
	Args: cobra.ExactArgs(1),
	RunE: validateCards,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateCards(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("error reading %s: %w", args[0], err)
	}

	cards, err := card.FromJSONArray(data)
	if err != nil {
		return fmt.Errorf("%s is not valid: %w", args[0], err)
	}

	fmt.Printf("%s: %d valid card(s)\n", args[0], len(cards))
	for _, c := range cards {
		fmt.Printf("  %-24s %-12s worktree=%v\n", c.Name, c.Status, c.WorktreeCreated)
	}
	return nil
}
