package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/ksred/klear-journal/internal/journal"
	"github.com/spf13/cobra"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <username> <file.csv>",
		Short: "Import trades from CSV; nothing is saved unless every row is valid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.open()
			if err != nil {
				return err
			}
			defer svc.close()
			ctx := cmd.Context()

			user, err := svc.user(ctx, args[0])
			if err != nil {
				return err
			}
			loc, err := svc.location(ctx, opts.tz, user.ID)
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			result, err := svc.Journal.Import(ctx, user.ID, f, dryRun, loc)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, msg := range result.Errors {
				fmt.Fprintln(out, msg)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("import rejected: %d problems, no trades saved", len(result.Errors))
			}

			verb := "imported"
			if dryRun {
				verb = "validated"
			}
			fmt.Fprintf(out, "%s %d trades (batch %s)\n", verb, result.Imported, result.BatchID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without saving")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		output  string
		filters = map[string]*string{}
	)

	cmd := &cobra.Command{
		Use:   "export <username>",
		Short: "Export a user's trades as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.open()
			if err != nil {
				return err
			}
			defer svc.close()
			ctx := cmd.Context()

			user, err := svc.user(ctx, args[0])
			if err != nil {
				return err
			}
			loc, err := svc.location(ctx, opts.tz, user.ID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			f := journal.ParseListFilters(flagGetter(filters), loc)
			if err := svc.Journal.Export(ctx, user.ID, f, w, loc); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	addFilterFlags(cmd, filters, "status")
	return cmd
}

// addFilterFlags registers the chart/list filter flags and any extras
func addFilterFlags(cmd *cobra.Command, into map[string]*string, extra ...string) {
	usage := map[string]string{
		"symbol": "symbol substring (case-insensitive)",
		"side":   "BUY or SELL",
		"start":  "earliest exit time (date or datetime, inclusive)",
		"end":    "latest exit time (date or datetime, inclusive)",
		"status": "open or closed",
	}
	for _, name := range append([]string{"symbol", "side", "start", "end"}, extra...) {
		into[name] = cmd.Flags().String(name, "", usage[name])
	}
}

func flagGetter(values map[string]*string) func(string) string {
	return func(name string) string {
		if v, ok := values[name]; ok && v != nil {
			return *v
		}
		return ""
	}
}
