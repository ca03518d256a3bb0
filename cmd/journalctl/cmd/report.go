package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ksred/klear-journal/internal/calendar"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/spf13/cobra"
)

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	filters := map[string]*string{}

	cmd := &cobra.Command{
		Use:   "summary <username>",
		Short: "Print PnL totals, per-symbol and per-day breakdowns",
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

			f := pnl.ParseFilters(flagGetter(filters), loc)
			summary, err := svc.PnL.Summary(ctx, user.ID, f)
			if err != nil {
				return fmt.Errorf("summary: %w", err)
			}
			bySymbol, err := svc.PnL.BySymbol(ctx, user.ID, f)
			if err != nil {
				return fmt.Errorf("by symbol: %w", err)
			}
			daily, err := svc.PnL.Daily(ctx, user.ID, f, loc)
			if err != nil {
				return fmt.Errorf("daily: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total PnL:     %.2f\n", summary.TotalPnL)
			fmt.Fprintf(out, "Closed trades: %d (open %d)\n", summary.ClosedTrades, summary.OpenTrades)
			fmt.Fprintf(out, "Win rate:      %.1f%% (%d wins, %d losses)\n", summary.WinRate, summary.Wins, summary.Losses)

			printSeries(out, "By symbol", bySymbol)
			printSeries(out, "By day ("+loc.String()+")", daily)
			return nil
		},
	}

	addFilterFlags(cmd, filters)
	return cmd
}

func printSeries(out io.Writer, title string, s pnl.Series) {
	fmt.Fprintf(out, "\n%s:\n", title)
	if len(s.Labels) == 0 {
		fmt.Fprintln(out, "  (no closed trades)")
		return
	}
	for i, label := range s.Labels {
		fmt.Fprintf(out, "  %-12s %12.2f\n", label, s.Values[i])
	}
}

func newCalendarCmd(opts *rootOptions) *cobra.Command {
	var (
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "calendar <username>",
		Short: "Print a month of daily PnL (default: month of the latest closed trade)",
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

			y, m := year, time.Month(month)
			if year == 0 || month == 0 {
				if y, m, err = svc.Calendar.DefaultMonth(ctx, user.ID, loc); err != nil {
					return err
				}
			}
			if m < time.January || m > time.December {
				return fmt.Errorf("month must be 1-12, got %d", m)
			}

			grid, err := svc.Calendar.Build(ctx, user.ID, y, m, loc)
			if err != nil {
				return err
			}
			printMonth(cmd.OutOrStdout(), grid)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "year (with --month)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (with --year)")
	return cmd
}

func printMonth(out io.Writer, m *calendar.Month) {
	const cell = "%11s"

	fmt.Fprintf(out, "%s %d\n", m.Name, m.Year)
	for _, d := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		fmt.Fprintf(out, cell, d)
	}
	fmt.Fprintln(out)

	for _, week := range m.Weeks {
		var days, values strings.Builder
		for _, c := range week {
			if !c.InMonth {
				fmt.Fprintf(&days, cell, "")
				fmt.Fprintf(&values, cell, "")
				continue
			}
			fmt.Fprintf(&days, cell, fmt.Sprint(c.Day))
			if c.PnL == nil {
				fmt.Fprintf(&values, cell, "-")
			} else {
				fmt.Fprintf(&values, cell, fmt.Sprintf("%.2f", *c.PnL))
			}
		}
		fmt.Fprintln(out, days.String())
		fmt.Fprintln(out, values.String())
	}

	fmt.Fprintf(out, "\nMonth total: %.2f over %d trades, win rate %.1f%%\n", m.TotalPnL, m.TradeCount, m.WinRate)
}
