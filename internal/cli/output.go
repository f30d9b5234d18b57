package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/randalmurphal/okr/internal/scoring"
)

// Risk band boundaries for styled output.
const (
	highRisk   = 0.7
	mediumRisk = 0.4
)

var (
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// useColor reports whether styled output should be written to w.
func useColor(w io.Writer) bool {
	return isTerminal(w) && os.Getenv("NO_COLOR") == ""
}

// riskBand names the band a risk score falls in.
func riskBand(r float64) string {
	switch {
	case r >= highRisk:
		return "high"
	case r >= mediumRisk:
		return "medium"
	default:
		return "low"
	}
}

// formatRisk renders a risk score with its band, colored when color is set.
func formatRisk(r float64, color bool) string {
	s := fmt.Sprintf("%.2f %s", r, riskBand(r))
	if !color {
		return s
	}
	switch riskBand(r) {
	case "high":
		return highStyle.Render(s)
	case "medium":
		return mediumStyle.Render(s)
	default:
		return lowStyle.Render(s)
	}
}

// formatVelocity renders progress per week with its band. Nil or zero
// velocity is stalled.
func formatVelocity(v *float64, color bool) string {
	if v == nil || *v == 0 {
		if color {
			return highStyle.Render("stalled")
		}
		return "stalled"
	}
	band := scoring.ClassifyVelocity(*v)
	s := fmt.Sprintf("%.2f/wk %s", *v, band)
	if !color {
		return s
	}
	switch band {
	case scoring.BandSlow:
		return mediumStyle.Render(s)
	case scoring.BandFast:
		return lowStyle.Render(s)
	default:
		return s
	}
}

// dim renders secondary text.
func dim(s string, color bool) string {
	if !color {
		return s
	}
	return dimStyle.Render(s)
}

// writeJSON encodes v to w, indented when w is a terminal.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if isTerminal(w) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
