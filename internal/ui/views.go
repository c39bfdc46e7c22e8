package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2E86AB"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	okIcon      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")).Render("✓")
	activeIcon  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F6AE2D")).Render("⚙")
	failedIcon  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D1495B")).Render("✗")
	pendingIcon = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("○")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2E86AB")).
			Padding(0, 1).
			Width(60)
)

const barWidth = 40

func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("silencecut ✂"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Cutting silence from %d file(s)", len(m.Files))))
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%d/%d complete, %d failed · q to quit",
		m.CompletedFiles, len(m.Files), m.FailedFiles)))
	return b.String()
}

func renderFileEntry(file FileProgress) string {
	name := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		return fmt.Sprintf(" %s %s → %s\n   %s", okIcon, name, filepath.Base(file.OutputPath), summary(file))

	case StatusAnalyzing:
		return fmt.Sprintf(" %s %s\n%s", activeIcon, name, boxStyle.Render("Detecting silence..."))

	case StatusEncoding:
		content := fmt.Sprintf("Encoding segments\n%s\n\nElapsed: %.1fs",
			renderProgressBar(file.Progress, barWidth), file.Elapsed.Seconds())
		return fmt.Sprintf(" %s %s\n%s", activeIcon, name, boxStyle.Render(content))

	case StatusError:
		return fmt.Sprintf(" %s %s\n   Error: %v", failedIcon, name, file.Error)

	default:
		return fmt.Sprintf(" %s %s\n   Queued...", pendingIcon, name)
	}
}

func summary(file FileProgress) string {
	if file.SilenceCount == 0 {
		return fmt.Sprintf("No silence found, copied %.1fs", file.Duration.Seconds())
	}
	return fmt.Sprintf("%d silences removed (%.1fs) | %.1fs → %.1fs | %d segments",
		file.SilenceCount, file.Removed().Seconds(),
		file.Duration.Seconds(), file.Kept.Seconds(), file.SegmentCount)
}

// renderProgressBar renders a bar for a 0 to 100 percentage.
func renderProgressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))
	return fmt.Sprintf("%s%s %d%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		int(percent))
}

func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := "Done"
	if m.FailedFiles > 0 {
		header = fmt.Sprintf("Done with %d failure(s)", m.FailedFiles)
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}
	return b.String()
}
