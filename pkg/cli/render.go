package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/lanecast/lanecast/internal/engine"
	"github.com/lanecast/lanecast/internal/forecast"
	"github.com/lanecast/lanecast/internal/stats"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// renderReport prints team tracks, dropped edges and the completion band
func (c *CLI) renderReport(report *engine.Report) {
	res := report.Result
	out := c.output

	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Forecast"), report.Plan)
	fmt.Fprintf(out, "Weight %s, %s trials, seed %d, took %s\n",
		res.UncertaintyWeight,
		humanize.Comma(int64(res.TrialsCompleted)),
		report.Seed,
		report.Duration.Round(time.Millisecond))
	if res.FailedTrials > 0 {
		fmt.Fprintf(out, "%s\n", color.YellowString("%d trials failed and were skipped", res.FailedTrials))
	}

	for _, team := range res.Teams {
		fmt.Fprintf(out, "\n%s\n", color.CyanString("Team %s", team.Team))
		renderTracks(out, team, res)
	}

	if len(report.Dropped) > 0 {
		fmt.Fprintf(out, "\n%s\n", color.YellowString("Dropped %d %s",
			len(report.Dropped), plural(len(report.Dropped), "edge", "edges")))
		for _, d := range report.Dropped {
			fmt.Fprintf(out, "  %s -> %s (%s)\n", d.From, d.To, d.Reason)
		}
	}

	band := res.Completion.Band
	fmt.Fprintf(out, "\n%s day %s to %s\n",
		color.GreenString("Completion"),
		formatDay(band.DueLow),
		formatDay(band.DueHigh))
}

func renderTracks(out io.Writer, team stats.TeamTracks, res *forecast.Result) {
	w := newTable(out)
	fmt.Fprintln(w, "TRACK\tITEM\tTITLE\tSTART\tDUE\tEFFORT\tDELAYED")
	fmt.Fprintln(w, "-----\t----\t-----\t-----\t---\t------\t-------")

	rows := 0
	for track, entries := range team.Tracks {
		for _, entry := range entries {
			item := res.Items[entry.Key]
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s-%s\t%s\t%s\n",
				track+1,
				entry.Key,
				truncate(entry.Title, 32),
				formatDay(entry.Band.StartLow),
				formatDay(entry.Band.DueLow),
				formatDay(entry.Band.DueHigh),
				formatDay(entry.Band.AdjustedEffort),
				formatShare(item.DelayedShare))
			rows++
		}
	}
	if rows == 0 {
		fmt.Fprintln(w, "-\t(no scheduled items)\t\t\t\t\t")
	}
	w.Flush()
}

func formatDay(d float64) string {
	return humanize.FtoaWithDigits(d, 1)
}

func formatShare(share float64) string {
	if share == 0 {
		return "-"
	}
	s := fmt.Sprintf("%.0f%%", share*100)
	if share >= 0.5 {
		return color.RedString(s)
	}
	return color.YellowString(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
