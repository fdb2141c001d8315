// Package cli holds the terminal styling of the fmdemod command.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#1E90FF")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	goodColor    = lipgloss.Color("#00AA00")
	warnColor    = lipgloss.Color("#FFA500")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000"))

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	GoodStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(goodColor)

	WarnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	// StationStyle frames the RDS programme service name.
	StationStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 1)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("fmdemod"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintKeyValue prints one styled key/value line.
func PrintKeyValue(key string, value any) {
	fmt.Printf("%s %s\n", KeyStyle.Render(key+":"), ValueStyle.Render(fmt.Sprint(value)))
}

func field(key, value string) string {
	return KeyStyle.Render(key) + " " + value
}

// StatusLine renders a one-line summary of a demodulator.
func StatusLine(st demod.Status, levels demod.MagSqLevels) string {
	parts := []string{
		ValueStyle.Render(strings.ToUpper(st.Mode)),
		field("pwr", ValueStyle.Render(fmt.Sprintf("%6.1f dB", dsp.PowerDB(levels.Avg)))),
		field("sq", squelch(st.Squelch)),
	}

	switch st.Mode {
	case "bfm":
		switch {
		case st.Stereo:
			parts = append(parts, GoodStyle.Render("stereo"))
		case st.PilotLocked:
			parts = append(parts, WarnStyle.Render("pilot"))
		default:
			parts = append(parts, KeyStyle.Render("mono"))
		}
		if st.RDS != nil {
			parts = append(parts, rdsSummary(st))
		}
	case "nfm":
		if st.CTCSSIndex >= 0 {
			parts = append(parts, field("ctcss", ValueStyle.Render(fmt.Sprintf("%.1f Hz", st.CTCSSTone))))
		}
	}

	if st.AudioDropped > 0 || st.AudioClipped > 0 {
		parts = append(parts, WarnStyle.Render(fmt.Sprintf("dropped %d clipped %d", st.AudioDropped, st.AudioClipped)))
	}
	return strings.Join(parts, "  ")
}

func squelch(s dsp.SquelchState) string {
	if s == dsp.SquelchOpen || s == dsp.SquelchClosing {
		return GoodStyle.Render(s.String())
	}
	return KeyStyle.Render(s.String())
}

func rdsSummary(st demod.Status) string {
	r := st.RDS
	if !r.Synced {
		return KeyStyle.Render("rds --")
	}
	station := r.Station
	ps := station.PS
	if ps == "" {
		ps = "        "
	}
	out := StationStyle.Render(ps) + " " + field("pi", ValueStyle.Render(fmt.Sprintf("%04X", station.PI)))
	if station.PTYName != "" {
		out += " " + KeyStyle.Render(station.PTYName)
	}
	if station.RTComplete {
		out += " " + ValueStyle.Render(strings.TrimSpace(station.RT))
	}
	return out
}
