package commands

import (
	"fmt"

	"github.com/rpattn/regwatch/internal/domain"
	"github.com/spf13/cobra"
)

// PatchIDCmd renames an identity, e.g. to merge a derived id into the
// register's own id once it becomes known.
var PatchIDCmd = &cobra.Command{
	Use:   "patch-id <attorney|firm> <from> <to>",
	Short: "Rename the external id of every version of an entity",
	Long: `Rename the external id of every version of an entity.

Merging into an id that already has versions fails when the two histories
overlap in time; nothing is changed in that case.`,
	Args: cobra.ExactArgs(3),
	RunE:  withApp(runPatchID),
}

// RollbackCmd undoes reconciliations on or after a date.
var RollbackCmd = &cobra.Command{
	Use:   "rollback <date>",
	Short: "Undo every reconciliation on or after a date",
	Long: `Delete versions opened on or after the date, reopen versions closed on
or after it, and drop the matching run records.

In-place firm updates cannot be reverted.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runRollback),
}

func runPatchID(cmd *cobra.Command, args []string, a *app) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	affected, err := a.store.PatchExternalID(cmd.Context(), kind, args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %d %s versions from %q to %q\n", affected, kind, args[1], args[2])
	return nil
}

func runRollback(cmd *cobra.Command, args []string, a *app) error {
	date, err := domain.ParseDate(args[0])
	if err != nil {
		return err
	}
	report, err := a.store.RollbackSince(cmd.Context(), date)
	if err != nil {
		return err
	}
	a.logger.Infow("Rolled back register", "since", args[0])

	w := newTable(cmd.OutOrStdout())
	row(w, "KIND", "DELETED", "REOPENED")
	row(w, string(domain.KindAttorney), fmt.Sprint(report.Attorneys.Deleted), fmt.Sprint(report.Attorneys.Reopened))
	row(w, string(domain.KindFirm), fmt.Sprint(report.Firms.Deleted), fmt.Sprint(report.Firms.Reopened))
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run records\n", report.Runs)
	return nil
}
