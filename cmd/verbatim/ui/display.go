package ui

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/spherical/verbatim/internal/domain"
)

// Table displays data in a formatted table.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
}

// Summary prints one row per artifact followed by the totals.
func Summary(s *domain.RunSummary) {
	Section("Run Summary")

	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		status := color.GreenString(string(r.State))
		detail := r.OutputPath
		if r.State != domain.StateCompleted {
			status = color.RedString(string(r.State))
			if r.Err != nil {
				detail = r.Err.Error()
			}
		}
		rows = append(rows, []string{
			r.Artifact.ID,
			status,
			fmt.Sprintf("%d", r.Units),
			fmt.Sprintf("%d", r.CacheHits),
			fmt.Sprintf("%d", r.Recognized),
			FormatDuration(r.Duration),
			detail,
		})
	}
	Table([]string{"Artifact", "State", "Units", "Cached", "Recognized", "Time", "Output"}, rows)

	Newline()
	if s.Failed() == 0 {
		Success("%d artifact(s) completed in %s", s.Completed(), FormatDuration(s.Duration))
		return
	}
	Warning("%d completed, %d failed in %s", s.Completed(), s.Failed(), FormatDuration(s.Duration))
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
