package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent focus sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			History []coordinator.HistoryView `json:"history"`
		}
		msg := coordinator.Message{Action: "getHistory", Limit: historyLimit}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		if len(resp.History) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet")
			return nil
		}
		return printHistory(cmd.OutOrStdout(), resp.History)
	},
}

type statsResponse struct {
	DailyMinutes [7]int         `json:"dailyMinutes"`
	BlockedSites map[string]int `json:"blockedSites"`
	WeekKey      string         `json:"weekKey"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show this week's focus statistics",
	Long: `Display focus minutes per weekday and the sites that were blocked
during completed sessions. Statistics reset every ISO week.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp statsResponse
		if err := newClient().Call(cmd.Context(), coordinator.Message{Action: "getStats"}, &resp); err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), resp)
		return nil
	},
}

var statsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear this week's statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Call(cmd.Context(), coordinator.Message{Action: "resetStats"}, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Statistics cleared")
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of sessions to show")
	statsCmd.AddCommand(statsResetCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

func printHistory(w io.Writer, entries []coordinator.HistoryView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMINUTES\tRESULT\tSOURCE")
	for _, e := range entries {
		var result string
		switch {
		case e.CompletedAt == 0:
			result = "running"
		case e.Completed:
			result = "completed"
		case e.Reason != "":
			result = "ended early (" + e.Reason + ")"
		default:
			result = "ended early"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", humanize.Time(time.UnixMilli(e.Date)), e.Duration, result, e.Source)
	}
	return tw.Flush()
}

func printStats(w io.Writer, s statsResponse) {
	fmt.Fprintf(w, "Week %s\n", s.WeekKey)
	fmt.Fprintln(w, "==============")

	total := 0
	for day, minutes := range s.DailyMinutes {
		total += minutes
		fmt.Fprintf(w, "%-10s %4d min\n", time.Weekday(day), minutes)
	}
	fmt.Fprintf(w, "%-10s %4s min\n", "Total", humanize.Comma(int64(total)))

	if len(s.BlockedSites) == 0 {
		return
	}

	type site struct {
		domain string
		count  int
	}
	sites := make([]site, 0, len(s.BlockedSites))
	for d, c := range s.BlockedSites {
		sites = append(sites, site{d, c})
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].count != sites[j].count {
			return sites[i].count > sites[j].count
		}
		return sites[i].domain < sites[j].domain
	})

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Blocked during completed sessions:")
	for _, s := range sites {
		fmt.Fprintf(w, "  %-30s %s\n", s.domain, humanize.Comma(int64(s.count)))
	}
}
