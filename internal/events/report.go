package events

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	summaryDateLayout = "02/01/06 15:04"
	summaryMaxRunes   = 27
)

// WriteSummary renders s in the report layout.
func WriteSummary(w io.Writer, s Summary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Channel %s\n", s.Channel)
	fmt.Fprintln(bw, "Stats:")
	fmt.Fprintf(bw, "Total: %d\n", s.Total)
	fmt.Fprintf(bw, "active: %d\n", s.Active)
	fmt.Fprintf(bw, "forces arrival at scene: %d\n", s.ForcesArrival)
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Event Reports:")
	for i, d := range s.Reports {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "Report_%d:\n", i+1)
		fmt.Fprintf(bw, "  city: %s\n", d.City)
		fmt.Fprintf(bw, "  date time: %s\n", FormatDateTime(d.DateTime))
		fmt.Fprintf(bw, "  event name: %s\n", d.Name)
		fmt.Fprintf(bw, "  summary: %s\n", Truncate(d.Description))
	}
	return bw.Flush()
}

// WriteSummaryFile writes the rendering to path, creating parent directories.
func WriteSummaryFile(path string, s Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSummary(f, s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FormatDateTime renders unix seconds as dd/mm/yy HH:MM in UTC.
func FormatDateTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(summaryDateLayout)
}

// Truncate shortens descriptions longer than 27 runes and appends "...".
func Truncate(desc string) string {
	r := []rune(desc)
	if len(r) <= summaryMaxRunes {
		return desc
	}
	return string(r[:summaryMaxRunes]) + "..."
}
