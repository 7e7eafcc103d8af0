package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show detailed results for an experiment",
	Long:  `Show conversion rates, confidence intervals, the z-test readout and the current recommendation.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		exp, err := resolveExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		result, err := engine.Metrics(ctx, s, exp.ID, statsParams())
		if err != nil {
			return err
		}

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("STATUS: %s\n", exp.Status)
		fmt.Printf("URL: %s (%s match)\n", exp.URL, exp.MatchType)
		if exp.Description != "" {
			fmt.Printf("ABOUT: %s\n", exp.Description)
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Printf("VARIANT           VISITS   CONVERSIONS  RATE     %.0f%% CI\n", result.ConfidenceLevel)
		fmt.Println(strings.Repeat("─", 64))
		printVariantRow(exp.VariantA, exp.VisitsA, exp.ConversionsA, result.RateA, result.ConfidenceLevel)
		printVariantRow(exp.VariantB, exp.VisitsB, exp.ConversionsB, result.RateB, result.ConfidenceLevel)
		fmt.Println()

		fmt.Printf("Difference: %+.2f pp (relative lift %+.1f%%)\n", result.Difference*100, result.RelativeLift*100)
		fmt.Printf("z = %.3f, p = %.4f", result.ZScore, result.PValue)
		if result.Significant {
			fmt.Printf("  (significant at %.0f%%)\n", result.ConfidenceLevel)
		} else {
			fmt.Println("  (not significant)")
		}
		fmt.Printf("Difference CI: [%+.2f pp, %+.2f pp]\n", result.CILower*100, result.CIUpper*100)
		fmt.Printf("Required sample per arm: %d (achieved power %.0f%%)\n",
			result.RequiredSampleSize, result.AchievedPower*100)
		fmt.Println()

		switch result.Recommendation {
		case stats.StopWinnerA:
			fmt.Printf("Recommendation: stop, variant A (\"%s\") wins\n", exp.VariantA)
		case stats.StopWinnerB:
			fmt.Printf("Recommendation: stop, variant B (\"%s\") wins\n", exp.VariantB)
		case stats.Inconclusive:
			fmt.Println("Recommendation: inconclusive, the variants are practically equivalent")
		default:
			fmt.Println("Recommendation: continue collecting data")
		}
		return nil
	})
}

func printVariantRow(name string, visits, conversions int64, rate, confidence float64) {
	lower, upper := stats.WilsonInterval(conversions, visits, confidence)
	ci := fmt.Sprintf("[%.1f%%, %.1f%%]", lower*100, upper*100)
	if visits == 0 {
		ci = "N/A"
	}
	if len(name) > 16 {
		name = name[:13] + "..."
	}
	fmt.Printf("%-16s  %-7d  %-11d  %-7s  %s\n", name, visits, conversions, formatPercent(rate), ci)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
