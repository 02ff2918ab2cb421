package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rpattn/regwatch/cmd/regwatch/commands"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "regwatch",
	Short: "Track the attorney and firm register over time",
	Long: `regwatch keeps a dated history of the patent and trade marks attorney
register and answers questions about it.

Examples:
  regwatch scrape                        # Reconcile today's register
  regwatch import ./archive              # Replay dated scrape archives
  regwatch registrations --filter pat    # New patent attorneys this week
  regwatch history attorney 12345        # Every version of one attorney
  regwatch serve                         # HTTP API on server.addr`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&commands.ConfigPath, "config", ".", "Directory containing config.yaml")
	flags.StringVar(&commands.LogLevel, "log-level", "", "Log level (overrides log.level)")
	flags.BoolVar(&commands.LogJSON, "log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(
		commands.ServeCmd,
		commands.ScrapeCmd,
		commands.ImportCmd,
		commands.ExportCmd,
		commands.RestoreCmd,
		commands.RegistrationsCmd,
		commands.LapsesCmd,
		commands.MovementsCmd,
		commands.NamesCmd,
		commands.FirmsCmd,
		commands.HistoryCmd,
		commands.RunsCmd,
		commands.PatchIDCmd,
		commands.RollbackCmd,
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
