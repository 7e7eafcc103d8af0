package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		experiments, err := s.ListExperiments(context.Background())
		if err != nil {
			return err
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet. Create one with 'splitpilot create'.")
			return nil
		}

		fmt.Println("NAME              STATUS     URL                   VISITS (A/B)  CONV (A/B)  WINNER")
		fmt.Println(strings.Repeat("─", 88))
		for _, exp := range experiments {
			winner := "-"
			if exp.WinnerVariant != nil {
				winner = string(*exp.WinnerVariant)
			}
			fmt.Printf("%-16s  %-9s  %-20s  %5d/%-5d   %4d/%-4d   %s\n",
				truncate(exp.Name, 16),
				exp.Status,
				truncate(exp.URL, 20),
				exp.VisitsA, exp.VisitsB,
				exp.ConversionsA, exp.ConversionsB,
				winner,
			)
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
