package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "effectsd",
	Short: "Composable status effects for actors",
	Long:  "Effectsd runs a status-effect engine: timed effects carry per-quantity values that merge through registered monoids, served over an HTTP and WebSocket API.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
