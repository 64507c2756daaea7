package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xupit3r/planedma/internal/runner"
	"github.com/xupit3r/planedma/internal/system"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE"))

	passStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7FFF00"))

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// styles holds the renderers for one output stream.
type styles struct {
	title, pass, fail, label lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain}
	}
	return styles{titleStyle, passStyle, failStyle, labelStyle}
}

func (s styles) field(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "  %s %v\n", s.label.Render(fmt.Sprintf("%-12s", name+":")), value)
}

// printResult writes the outcome of one run.
func printResult(w io.Writer, s styles, res *runner.Result, runErr error) {
	if res == nil {
		fmt.Fprintln(w, s.fail.Render("FAIL"), runErr)
		return
	}

	verdict := s.pass.Render("PASS")
	if runErr != nil {
		verdict = s.fail.Render("FAIL")
	}
	fmt.Fprintf(w, "%s %s\n", s.title.Render(res.Layout.String()), verdict)
	s.field(w, "device", res.Device)
	s.field(w, "planes", res.Prepared)
	s.field(w, "status", res.Status)
	s.field(w, "transfers", fmt.Sprintf("%d (%s)", res.Stats.Transfers, system.FormatBytes(res.Stats.BytesTransferred)))
	s.field(w, "balanced", res.Stats.Balanced())
	s.field(w, "elapsed", res.Elapsed.Round(time.Microsecond))

	r := res.Report
	if r.Count > 0 {
		more := ""
		switch {
		case r.Stopped:
			more = " (stopped early)"
		case r.Truncated:
			more = fmt.Sprintf(" (showing %d)", len(r.Mismatches))
		}
		s.field(w, "mismatches", fmt.Sprintf("%d%s", r.Count, more))
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "    %s\n", m)
		}
	}
	if len(res.Dumped) > 0 {
		s.field(w, "dumped", strings.Join(res.Dumped, ", "))
	}
	if runErr != nil {
		s.field(w, "error", runErr)
	}
}

// printSweep writes one line per size.
func printSweep(w io.Writer, s styles, results []runner.SweepResult) {
	fmt.Fprintln(w, s.title.Render(fmt.Sprintf("%-12s %-6s %-10s %-10s %s", "SIZE", "RESULT", "MISMATCH", "TRANSFERS", "ELAPSED")))
	for _, r := range results {
		verdict := s.pass.Render(fmt.Sprintf("%-6s", "PASS"))
		if r.Err != nil {
			verdict = s.fail.Render(fmt.Sprintf("%-6s", "FAIL"))
		}
		if r.Result == nil {
			fmt.Fprintf(w, "%-12s %s %v\n", r.Size, verdict, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-12s %s %-10d %-10d %s\n",
			r.Size, verdict, r.Result.Report.Count, r.Result.Stats.Transfers, r.Result.Elapsed.Round(time.Microsecond))
	}
}
