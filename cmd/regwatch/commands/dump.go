package commands

import (
	"fmt"

	"github.com/rpattn/regwatch/internal/export"
	"github.com/spf13/cobra"
)

var restoreReplaceFlag bool

// ExportCmd dumps a table to CSV or XLSX.
var ExportCmd = &cobra.Command{
	Use:   "export <attorneys|firms> <file.csv|file.xlsx>",
	Short: "Dump every version of a table",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runExport),
}

// RestoreCmd loads a dump written by export.
var RestoreCmd = &cobra.Command{
	Use:   "restore <attorneys|firms> <file.csv|file.xlsx>",
	Short: "Load a table dump into an empty table",
	Long: `Load a table dump in one transaction. The table must be empty unless
--replace is given, in which case its rows are discarded first.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runRestore),
}

func init() {
	RestoreCmd.Flags().BoolVar(&restoreReplaceFlag, "replace", false, "Discard existing rows before loading")
}

func runExport(cmd *cobra.Command, args []string, a *app) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	rows, err := export.NewService(a.store, a.logger).ExportFile(cmd.Context(), kind, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s versions to %s\n", rows, kind, args[1])
	return nil
}

func runRestore(cmd *cobra.Command, args []string, a *app) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	rows, err := export.NewService(a.store, a.logger).RestoreFile(cmd.Context(), kind, args[1], restoreReplaceFlag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d %s versions from %s\n", rows, kind, args[1])
	return nil
}
