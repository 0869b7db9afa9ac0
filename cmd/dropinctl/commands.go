package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"dropin/internal/application/orchestrators"
	"dropin/internal/application/projections"
)

func importCmd(g *globals) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import guests from a CSV file",
		Long: `Import guests from a CSV file with a FIRST_NAME column and optional
LAST_NAME, ALIAS, BIRTH_YEAR and HOUSING_STATUS columns. Guests already on
file (same first and last name) are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			e, err := openEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			res, err := e.board.ImportGuests(ctx, orchestrators.ImportGuestsInput{
				Reader:     f,
				ImportedBy: "dropinctl",
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}
			if g.out == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "rows: %d  created: %d  skipped: %d  errors: %d", res.Total, res.Created, res.Skipped, len(res.Errors))
			if res.DryRun {
				fmt.Fprint(w, "  (dry run)")
			}
			fmt.Fprintln(w)
			for _, re := range res.Errors {
				fmt.Fprintf(w, "  row %d: %s\n", re.Row, re.Message)
			}
			if len(res.Unknown) > 0 {
				fmt.Fprintf(w, "ignored columns: %v\n", res.Unknown)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without saving")
	return cmd
}

func reportCmd(g *globals) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the daily service report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD")
				}
			}
			ctx := cmd.Context()
			e, err := openEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			rep, err := projections.QueryGetDailyReport(ctx, projections.GetDailyReportQuery{Date: date},
				projections.GetDailyReportDeps{ServiceStore: e.services, DonationStore: e.donations})
			if err != nil {
				return err
			}
			if g.out == "json" {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "service day as YYYY-MM-DD (default today)")
	return cmd
}

func printReport(cmd *cobra.Command, rep projections.GetDailyReportResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Daily report for %s\n\n", rep.Date)
	fmt.Fprintf(w, "  guests served: %d\n\n", rep.UniqueGuests)

	types := make([]string, 0, len(rep.Services))
	for t := range rep.Services {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintf(w, "  %-10s %8s %9s %10s\n", "service", "entries", "servings", "cancelled")
	for _, t := range types {
		c := rep.Services[t]
		fmt.Fprintf(w, "  %-10s %8d %9d %10d\n", t, c.Entries, c.Servings, c.Cancelled)
	}

	fmt.Fprintf(w, "\n  donations: %d (money $%d.%02d)\n", rep.Donations, rep.MoneyCents/100, rep.MoneyCents%100)
	kinds := make([]string, 0, len(rep.DonationsByKind))
	for k := range rep.DonationsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if n := rep.DonationsByKind[k]; n > 0 {
			fmt.Fprintf(w, "    %-10s %d\n", k, n)
		}
	}
}

func kvCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Inspect the board's kv storage",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored value, e.g. board:2026-03-02 or guests:directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			v := e.kv.GetItem(ctx, args[0])
			if v == nil {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.close(ctx)
			return e.kv.RemoveItem(ctx, args[0])
		},
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Write today's board and the guest directory to kv now",
		Long: `Load today's board (from its stored snapshot, or from the service
records when none exists) and write it back immediately. Run "kv rm
board:<date>" first to rebuild the snapshot from the service records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, g)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			e.board.Persist(ctx)
			v := e.board.View()
			fmt.Fprintf(cmd.OutOrStdout(), "flushed board %s (%d entries)\n", v.Date, len(v.Rows))
			if e.kv.UsingFallback() {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: primary kv backend unavailable; the write went to the in-process fallback and is lost on exit")
			}
			return nil
		},
	}

	cmd.AddCommand(get, rm, flush)
	return cmd
}
