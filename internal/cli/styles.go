// Package cli holds the terminal styling shared by the silencecut commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/maauso/silencecut/internal/timeline"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#2E86AB") // silencecut blue
	accentColor  = lipgloss.Color("#F6AE2D") // amber
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	errorColor   = lipgloss.Color("#D1495B")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	SilenceStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// PrintVersion prints version information.
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("silencecut ✂"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message to stderr.
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintKV prints one aligned key/value line.
func PrintKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(fmt.Sprintf("%-10s", key+":")), ValueStyle.Render(fmt.Sprint(value)))
}

// PrintIntervals prints one line per interval as start → end (length).
func PrintIntervals(w io.Writer, title string, list timeline.List) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("%s (%d)", title, len(list))))
	if len(list) == 0 {
		fmt.Fprintln(w, KeyStyle.Render("  none"))
		return
	}
	for _, iv := range list {
		fmt.Fprintf(w, "  %s → %s  %s\n",
			FormatClock(iv.Start),
			FormatClock(iv.End),
			SilenceStyle.Render(fmt.Sprintf("%.2fs", iv.Duration().Seconds())),
		)
	}
}

// FormatClock renders d as HH:MM:SS.mmm.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}
