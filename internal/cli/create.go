package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		description string
		url         string
		matchType   string
		policy      string
		splitA      int
		variantA    string
		variantB    string
		minSample   int
		confidence  float64
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment (draft)",
		Long: `Create a new A/B experiment in draft status. Start it with 'start'.

Examples:
  splitpilot create hero --url "/" --variant-a "Ship Faster" --variant-b "Build Better"
  splitpilot create pricing --url "/pricing/*" --match-type pattern \
      --policy custom_split --split-a 30 --variant-a page-v1 --variant-b page-v2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp := &store.Experiment{
				ID:                uuid.NewString(),
				Name:              args[0],
				Description:       description,
				URL:               url,
				MatchType:         store.MatchType(matchType),
				Policy:            store.Policy(policy),
				SplitA:            splitA,
				VariantA:          variantA,
				VariantB:          variantB,
				MinimumSampleSize: minSample,
				ConfidenceLevel:   confidence,
				Status:            store.StatusDraft,
			}
			if err := exp.Validate(); err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateExperiment(context.Background(), exp); err != nil {
					return err
				}
				fmt.Printf("Created experiment '%s' (%s)\n", exp.Name, exp.ID)
				fmt.Printf("  URL: %s (%s match)\n", exp.URL, exp.MatchType)
				fmt.Printf("  Policy: %s", exp.Policy)
				if exp.Policy == store.PolicyCustomSplit {
					fmt.Printf(" (%d%% to A)", exp.SplitA)
				}
				fmt.Println()
				fmt.Printf("  A: %s\n  B: %s\n", exp.VariantA, exp.VariantB)
				fmt.Println("\nExperiment is a draft. Run 'splitpilot start " + exp.Name + "' to go live.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "experiment description")
	cmd.Flags().StringVar(&url, "url", "", "URL to match (required)")
	cmd.Flags().StringVar(&matchType, "match-type", "exact", "url matching: exact, pattern or regex")
	cmd.Flags().StringVar(&policy, "policy", "fifty_fifty", "assignment policy: fifty_fifty, alternating or custom_split")
	cmd.Flags().IntVar(&splitA, "split-a", 50, "percent of traffic to variant A (custom_split only)")
	cmd.Flags().StringVarP(&variantA, "variant-a", "a", "", "variant A content reference (required)")
	cmd.Flags().StringVarP(&variantB, "variant-b", "b", "", "variant B content reference (required)")
	cmd.Flags().IntVar(&minSample, "min-sample", 100, "minimum visitors per arm before auto-stop")
	cmd.Flags().Float64Var(&confidence, "confidence", 95, "confidence level in percent")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("variant-a")
	cmd.MarkFlagRequired("variant-b")

	return cmd
}
