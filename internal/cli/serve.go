package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raymoo/monoidal-effects/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the effect engine and HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := app.ParseEnv()
	if err != nil {
		return err
	}
	cfg.Version = VersionString()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, cfg)
}
