package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a draft experiment",
	Long: `Transition a draft experiment to active. The configuration is
re-validated first so a broken URL pattern can never go live.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		exp, err := resolveExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}
		if exp.Status != store.StatusDraft {
			return fmt.Errorf("experiment is not a draft (current status: %s)", exp.Status)
		}
		if err := exp.Validate(); err != nil {
			return err
		}

		if err := s.UpdateExperimentStatus(ctx, exp.ID, store.StatusDraft, store.StatusActive, nil, nil); err != nil {
			return err
		}
		fmt.Printf("Experiment '%s' is now active on %s\n", exp.Name, exp.URL)
		return nil
	})
}
