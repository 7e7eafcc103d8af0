package cli

import (
	"github.com/spf13/cobra"

	"github.com/splitpilot/splitpilot/internal/config"
)

var (
	cfgFile string
	dbPath  string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "splitpilot",
	Short: "Splitpilot - an embedded A/B experiment engine",
	Long: `Splitpilot buckets visitors into experiment variants, records
conversions against those buckets and decides experiments with a
two-proportion z-test. Single Go binary, embedded SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DB.Path = dbPath
		}
		return config.InitLogger(cfg.Log)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
}
