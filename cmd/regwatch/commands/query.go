package commands

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/analytics"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/spf13/cobra"
)

// RegistrationsCmd lists attorneys that joined the register in a window.
var RegistrationsCmd = &cobra.Command{
	Use:   "registrations",
	Short: "List attorneys first registered in a window",
	Long: `List attorneys first registered in a window (default: the week to today).

Examples:
  regwatch registrations
  regwatch registrations --first 2024-01-01 --last 2024-01-31 --filter pat`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		return runWindowed(cmd, a, analytics.NewService(a.store).Registrations)
	}),
}

// LapsesCmd lists attorneys that left the register in a window.
var LapsesCmd = &cobra.Command{
	Use:   "lapses",
	Short: "List attorneys whose registration lapsed in a window",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		return runWindowed(cmd, a, analytics.NewService(a.store).Lapses)
	}),
}

// MovementsCmd lists firm changes in a window.
var MovementsCmd = &cobra.Command{
	Use:   "movements",
	Short: "List attorneys who changed firm in a window",
	Args:  cobra.NoArgs,
	RunE:  withApp(runMovements),
}

// NamesCmd lists current attorneys ranked by an attribute.
var NamesCmd = &cobra.Command{
	Use:   "names",
	Short: "List attorneys valid on a date",
	Long: `List attorneys valid on a date, ranked by --order.

Examples:
  regwatch names --order -name_length --limit 10
  regwatch names --date 2024-01-01 --filter tm`,
	Args: cobra.NoArgs,
	RunE: withApp(runNames),
}

// FirmsCmd lists firms valid on a date.
var FirmsCmd = &cobra.Command{
	Use:   "firms",
	Short: "List firms valid on a date",
	Args:  cobra.NoArgs,
	RunE:  withApp(runFirms),
}

// HistoryCmd prints every version of one entity.
var HistoryCmd = &cobra.Command{
	Use:   "history <attorney|firm> <id>",
	Short: "Show the version history of an attorney or firm",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runHistory),
}

// RunsCmd lists recent reconciliations.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent reconciliation runs",
	Args:  cobra.NoArgs,
	RunE:  withApp(runRuns),
}

func init() {
	for _, cmd := range []*cobra.Command{RegistrationsCmd, LapsesCmd, MovementsCmd} {
		cmd.Flags().String("first", "", "First date of the window (default last - 7 days)")
		cmd.Flags().String("last", "", "Last date of the window (default today)")
		cmd.Flags().String("filter", "", "Capability filter: pat, tm or pat,tm")
	}
	NamesCmd.Flags().String("order", "-name_length", "Ranking, e.g. -name_length or +name")
	FirmsCmd.Flags().String("order", "+name", "Ranking, e.g. +name or -name_length")
	for _, cmd := range []*cobra.Command{NamesCmd, FirmsCmd} {
		cmd.Flags().String("date", "", "Date to query (default today)")
		cmd.Flags().String("filter", "", "Capability filter: pat, tm or pat,tm")
		cmd.Flags().Int("limit", 0, "Maximum rows to print (0 for all)")
	}
	RunsCmd.Flags().String("kind", "", "Only runs of this kind (attorney or firm)")
	RunsCmd.Flags().Int("limit", 20, "Maximum runs to print")
}

// windowArgs reads the --first, --last and --filter flags.
func windowArgs(cmd *cobra.Command) (domain.Window, domain.Filter, error) {
	first, _ := cmd.Flags().GetString("first")
	last, _ := cmd.Flags().GetString("last")
	filter, _ := cmd.Flags().GetString("filter")
	window, err := windowFlags(first, last)
	return window, domain.ParseFilter(filter), err
}

// listArgs reads the --date, --order, --filter and --limit flags.
func listArgs(cmd *cobra.Command) (time.Time, domain.OrderBy, domain.Filter, int, error) {
	raw, _ := cmd.Flags().GetString("date")
	order, _ := cmd.Flags().GetString("order")
	filter, _ := cmd.Flags().GetString("filter")
	n, _ := cmd.Flags().GetInt("limit")
	date, err := dateFlag(raw, domain.Today())
	return date, domain.ParseOrderBy(order), domain.ParseFilter(filter), n, err
}

func runWindowed(cmd *cobra.Command, _ *app, query func(context.Context, domain.Window, domain.Filter) ([]domain.AttorneyVersion, error)) error {
	window, filter, err := windowArgs(cmd)
	if err != nil {
		return err
	}
	versions, err := query(cmd.Context(), window, filter)
	if err != nil {
		return err
	}
	return printAttorneys(cmd.OutOrStdout(), versions)
}

func runMovements(cmd *cobra.Command, _ []string, a *app) error {
	window, filter, err := windowArgs(cmd)
	if err != nil {
		return err
	}
	movements, err := analytics.NewService(a.store).Movements(cmd.Context(), window, filter)
	if err != nil {
		return err
	}
	w := newTable(cmd.OutOrStdout())
	row(w, "DATE", "ID", "NAME", "FROM", "TO")
	for _, m := range movements {
		row(w, m.New.ValidFrom.Format(domain.DateLayout), m.New.ExternalID, m.New.Attrs.Name, orDash(m.Old.Attrs.Firm), orDash(m.New.Attrs.Firm))
	}
	return w.Flush()
}

func runNames(cmd *cobra.Command, _ []string, a *app) error {
	date, order, filter, n, err := listArgs(cmd)
	if err != nil {
		return err
	}
	versions, err := analytics.NewService(a.store).Attorneys(cmd.Context(), date, order, filter)
	if err != nil {
		return err
	}
	return printAttorneys(cmd.OutOrStdout(), limit(versions, n))
}

func runFirms(cmd *cobra.Command, _ []string, a *app) error {
	date, order, filter, n, err := listArgs(cmd)
	if err != nil {
		return err
	}
	versions, err := analytics.NewService(a.store).Firms(cmd.Context(), date, order, filter)
	if err != nil {
		return err
	}
	w := newTable(cmd.OutOrStdout())
	row(w, "ID", "NAME", "WEBSITE", "REGISTERED AS", "SINCE")
	for _, v := range limit(versions, n) {
		row(w, v.ExternalID, v.Attrs.Name, orDash(v.Attrs.Website), registeredAs(v.Attrs.Patents, v.Attrs.Trademarks), v.ValidFrom.Format(domain.DateLayout))
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string, a *app) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	service := analytics.NewService(a.store)
	w := newTable(cmd.OutOrStdout())
	row(w, "FROM", "TO", "CHANGES")

	switch kind {
	case domain.KindAttorney:
		entries, err := service.AttorneyHistory(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.Wrapf(domain.ErrNotFound, "attorney %q", args[1])
		}
		for i, e := range entries {
			row(w, e.Version.ValidFrom.Format(domain.DateLayout), validTo(e.Version.Period), describe(i, e.Version.Attrs.Name, e.Changes))
		}
	default:
		entries, err := service.FirmHistory(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.Wrapf(domain.ErrNotFound, "firm %q", args[1])
		}
		for i, e := range entries {
			row(w, e.Version.ValidFrom.Format(domain.DateLayout), validTo(e.Version.Period), describe(i, e.Version.Attrs.Name, e.Changes))
		}
	}
	return w.Flush()
}

func runRuns(cmd *cobra.Command, _ []string, a *app) error {
	rawKind, _ := cmd.Flags().GetString("kind")
	n, _ := cmd.Flags().GetInt("limit")
	var kind domain.Kind
	if rawKind != "" {
		parsed, err := parseKind(rawKind)
		if err != nil {
			return err
		}
		kind = parsed
	}
	runs, err := analytics.NewService(a.store).Runs(cmd.Context(), kind, n)
	if err != nil {
		return err
	}
	w := newTable(cmd.OutOrStdout())
	row(w, "AS OF", "KIND", "SOURCE", "CLOSED", "INSERTED", "UPDATED", "UNCHANGED")
	for _, run := range runs {
		row(w, run.AsOf.Format(domain.DateLayout), string(run.Kind), run.Source,
			strconv.Itoa(run.Closed), strconv.Itoa(run.Inserted), strconv.Itoa(run.Updated), strconv.Itoa(run.Unchanged))
	}
	return w.Flush()
}

func printAttorneys(out io.Writer, versions []domain.AttorneyVersion) error {
	w := newTable(out)
	row(w, "ID", "NAME", "FIRM", "REGISTERED AS", "FROM", "TO")
	for _, v := range versions {
		row(w, v.ExternalID, v.Attrs.Name, orDash(v.Attrs.Firm), registeredAs(v.Attrs.Patents, v.Attrs.Trademarks),
			v.ValidFrom.Format(domain.DateLayout), validTo(v.Period))
	}
	return w.Flush()
}

func describe(idx int, name string, changes []domain.Change) string {
	if idx == 0 {
		return "registered as " + name
	}
	if len(changes) == 0 {
		return "-"
	}
	return domain.SummariseChanges(changes)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
