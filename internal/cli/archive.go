package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

func init() {
	rootCmd.AddCommand(newArchiveCmd())
}

func newArchiveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "archive <name>",
		Short: "Archive a completed experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				exp, err := resolveExperiment(ctx, s, args[0])
				if err != nil {
					return err
				}
				if exp.Status != store.StatusCompleted {
					return fmt.Errorf("only completed experiments can be archived (current status: %s)", exp.Status)
				}

				if !yes {
					prompt := promptui.Prompt{
						Label:     fmt.Sprintf("Archive experiment '%s'", exp.Name),
						IsConfirm: true,
					}
					if _, err := prompt.Run(); err != nil {
						if err == promptui.ErrInterrupt {
							os.Exit(0)
						}
						fmt.Println("Aborted.")
						return nil
					}
				}

				if err := s.UpdateExperimentStatus(ctx, exp.ID, store.StatusCompleted, store.StatusArchived, nil, nil); err != nil {
					return err
				}
				fmt.Printf("Experiment '%s' archived.\n", exp.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
