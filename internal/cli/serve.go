package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/server"
	"github.com/splitpilot/splitpilot/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the auto-analyzer",
	Long: `Run the assignment/conversion HTTP endpoints together with the
periodic analyzer that stops experiments once they reach significance.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		log := zap.L()

		port := cfg.Server.Port
		if p, _ := cmd.Flags().GetInt("port"); p > 0 {
			port = p
		}

		srv := server.New(s, server.Options{
			Port:       port,
			AdminToken: cfg.Server.AdminToken,
			RateLimit:  cfg.Server.RateLimit,
			RateBurst:  cfg.Server.RateBurst,
			Params:     statsParams(),
		}, log)

		fmt.Printf("splitpilot running on http://localhost:%d\n", port)
		fmt.Printf("Admin token: %s\n", srv.Token())
		fmt.Println("Press Ctrl+C to stop")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(ctx)
		})
		if cfg.Analyzer.Enabled {
			analyzer := engine.NewAnalyzer(s, statsParams(), cfg.Analyzer.Interval, log)
			g.Go(func() error {
				err := analyzer.Run(ctx)
				if err == context.Canceled {
					return nil
				}
				return err
			})
		}

		err := g.Wait()
		if err == context.Canceled {
			return nil
		}
		return err
	})
}
