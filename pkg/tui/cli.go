// Package tui renders scan reports and progress for the terminal.
// Simple streaming output, no interactive TUI.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/datagrade/datagrade/pkg/score"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warn    = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warn).Bold(true)
)

const barWidth = 20

// PrintHeader prints the tool banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  DATAGRADE")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(w, mutedStyle.Render("  Streaming quality scoring for text datasets"))
	fmt.Fprintln(w)
}

// RenderReport prints the full report: headline grade, per-category score
// bars, duplication summary, top issues, and analyzer states.
func RenderReport(w io.Writer, r *score.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Dataset:"), titleStyle.Render(r.Dataset))
	fmt.Fprintf(w, "  %s %s rows in %s\n",
		mutedStyle.Render("Scanned:"),
		titleStyle.Render(formatNumber(r.Rows)),
		mutedStyle.Render(formatDuration(r.Duration)))
	if r.Incomplete {
		fmt.Fprintf(w, "  %s\n", warnStyle.Render("⚠ PARTIAL RESULT — scan did not finish"))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s  %s\n",
		mutedStyle.Render("Quality:"),
		titleStyle.Render(fmt.Sprintf("%.3f", r.Composite)),
		gradeStyle(r.Grade).Render(r.Grade))

	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ CATEGORY SCORES"))
	for _, s := range r.Scores {
		if s.Excluded {
			fmt.Fprintf(w, "  %-14s %s\n",
				string(s.Category), mutedStyle.Render("— excluded"))
			continue
		}
		fmt.Fprintf(w, "  %-14s %s %s %s\n",
			string(s.Category),
			scoreBar(s.Score),
			titleStyle.Render(fmt.Sprintf("%.2f", s.Score)),
			mutedStyle.Render(fmt.Sprintf("(%s rows flagged)", formatNumber(s.FlaggedRows))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ DUPLICATION"))
	fmt.Fprintf(w, "  %s %s exact, %s near, %s distinct contents\n",
		mutedStyle.Render("Duplicates:"),
		titleStyle.Render(formatNumber(r.Duplication.ExactDuplicates)),
		titleStyle.Render(formatNumber(r.Duplication.NearDuplicates)),
		titleStyle.Render(formatNumber(r.Duplication.DistinctContents)))

	if len(r.TopIssues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accentStyle.Render("▸ TOP ISSUES"))
		for _, is := range r.TopIssues {
			col := ""
			if is.Column != "" {
				col = mutedStyle.Render(" [" + is.Column + "]")
			}
			fmt.Fprintf(w, "  %s %-24s%s %s\n",
				mutedStyle.Render("·"),
				is.Name, col,
				titleStyle.Render(formatNumber(is.Rows)+" rows"))
		}
	}

	if degraded := degradedAnalyzers(r); len(degraded) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accentStyle.Render("▸ ANALYZERS"))
		for _, a := range degraded {
			fmt.Fprintf(w, "  %s %s %s\n",
				warnStyle.Render("⚠"), a.Name,
				mutedStyle.Render(a.Status+": "+a.Reason))
		}
	}
	fmt.Fprintln(w)
}

func degradedAnalyzers(r *score.Report) []score.AnalyzerStatus {
	var out []score.AnalyzerStatus
	for _, a := range r.Analyzers {
		if a.Status == "skipped" || a.Status == "failed" {
			out = append(out, a)
		}
	}
	return out
}

func gradeStyle(grade string) lipgloss.Style {
	switch grade {
	case score.GradeExcellent, score.GradeGood:
		return successStyle
	case score.GradeFair:
		return warnStyle
	default:
		return accentStyle
	}
}

func scoreBar(v float64) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v*barWidth + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	if v >= 0.75 {
		return successStyle.Render(bar)
	}
	if v >= 0.5 {
		return warnStyle.Render(bar)
	}
	return accentStyle.Render(bar)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar for a scan. Pass -1 when the row
// count is unknown, which it usually is for streaming sources.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
