// Package render produces the styled terminal output the CLI prints
// around runs: banners, phase lines, and progress bars.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/skondo/overture/internal/progress"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	barFill  = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	barEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// Banner draws a bordered box with the project name and a subtitle line.
func Banner(project, subtitle string) string {
	body := project
	if subtitle != "" {
		body += "\n" + labelStyle.Render(subtitle)
	}
	return bannerStyle.Render(body)
}

// PhaseLine formats a single phase transition for the console.
func PhaseLine(iteration int, phase, detail string) string {
	line := fmt.Sprintf("[%d] %s", iteration, phase)
	if detail != "" {
		line += " " + labelStyle.Render(detail)
	}
	return line
}

// GateVerdict formats a gate outcome.
func GateVerdict(passed bool, detail string) string {
	if passed {
		return okStyle.Render("gates passed") + " " + labelStyle.Render(detail)
	}
	return failStyle.Render("gates failed") + " " + labelStyle.Render(detail)
}

// Warn formats a warning line.
func Warn(msg string) string {
	return warnStyle.Render(msg)
}

// ProgressBar renders task completion as a fixed-width bar with counts.
func ProgressBar(stats progress.Stats, width int) string {
	if width < 10 {
		width = 10
	}
	pct := stats.Percent()
	filled := width * pct / 100

	bar := barFill.Render(strings.Repeat("█", filled)) +
		barEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%% (%d/%d tasks)", bar, pct, stats.Completed, stats.Total)
}
