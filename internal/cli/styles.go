package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

const rule = "  ─────────────────────────────────────"

// printOK writes a green check line.
func printOK(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), msg)
}

// printFail writes a red cross line.
func printFail(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", accentStyle.Render("✗"), msg)
}

// printKV writes one "  label value" summary row.
func printKV(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(fmt.Sprint(value)))
}

// printRule writes a horizontal separator.
func printRule(w io.Writer) {
	fmt.Fprintln(w, mutedStyle.Render(rule))
}

// newProgressBar reports bytes read from a trace of size bytes on w.
func newProgressBar(w io.Writer, size int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
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
