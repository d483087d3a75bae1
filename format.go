package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// statusf prints a status message to the command's stderr unless --quiet.
func statusf(cmd *cobra.Command, format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}

// formatSize renders a byte count with binary units, e.g. "1.5 KB".
func formatSize(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// formatTime is ls's MODIFIED column. Entries without a stamp show "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	layout := "Jan _2  2006"
	if t.Year() == time.Now().Year() {
		layout = "Jan _2 15:04"
	}

	return t.Format(layout)
}

// printTable writes headers and rows as columns two spaces apart.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}
