package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <name>",
	Short: "Recompute an experiment's counters from raw assignments",
	Long: `Rebuild the visit and conversion counters from the assignment rows,
which are the ground truth. Heals counter drift left behind by increments
that failed after an assignment or conversion was persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		exp, err := resolveExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		counts, err := s.AssignmentCounts(ctx, exp.ID)
		if err != nil {
			return err
		}

		before := store.Counts{
			VisitsA: exp.VisitsA, VisitsB: exp.VisitsB,
			ConversionsA: exp.ConversionsA, ConversionsB: exp.ConversionsB,
		}
		if counts == before {
			fmt.Printf("Experiment '%s': counters already match assignment rows.\n", exp.Name)
			return nil
		}

		if err := s.SetCounters(ctx, exp.ID, counts); err != nil {
			return err
		}
		fmt.Printf("Experiment '%s' reconciled:\n", exp.Name)
		fmt.Printf("  visits A: %d -> %d, visits B: %d -> %d\n",
			before.VisitsA, counts.VisitsA, before.VisitsB, counts.VisitsB)
		fmt.Printf("  conversions A: %d -> %d, conversions B: %d -> %d\n",
			before.ConversionsA, counts.ConversionsA, before.ConversionsB, counts.ConversionsB)
		return nil
	})
}
