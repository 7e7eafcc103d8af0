package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

func init() {
	rootCmd.AddCommand(newStopCmd())
}

func newStopCmd() *cobra.Command {
	var winnerFlag string

	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop an active experiment and declare a winner",
		Long: `Manually complete an active experiment. The winning variant can be
given with --winner, otherwise you are prompted to pick one.

Example:
  splitpilot stop hero --winner B`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				exp, err := resolveExperiment(ctx, s, args[0])
				if err != nil {
					return err
				}
				if exp.Status != store.StatusActive {
					return fmt.Errorf("experiment is not active (current status: %s)", exp.Status)
				}

				winner, err := pickWinner(exp, winnerFlag)
				if err != nil {
					return err
				}

				endDate := time.Now()
				if err := s.UpdateExperimentStatus(ctx, exp.ID, store.StatusActive, store.StatusCompleted, &winner, &endDate); err != nil {
					return err
				}
				fmt.Printf("Experiment '%s' completed, winner: variant %s\n", exp.Name, winner)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&winnerFlag, "winner", "w", "", "winning variant (A or B)")
	return cmd
}

func pickWinner(exp *store.Experiment, flag string) (store.Variant, error) {
	switch flag {
	case "A", "a":
		return store.VariantA, nil
	case "B", "b":
		return store.VariantB, nil
	case "":
	default:
		return "", fmt.Errorf("invalid winner %q (want A or B)", flag)
	}

	rateA, rateB := exp.Rates()
	prompt := promptui.Select{
		Label: "Winning variant",
		Items: []string{
			fmt.Sprintf("A: %s (%.2f%%)", exp.VariantA, rateA*100),
			fmt.Sprintf("B: %s (%.2f%%)", exp.VariantB, rateB*100),
		},
	}
	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	if idx == 0 {
		return store.VariantA, nil
	}
	return store.VariantB, nil
}
