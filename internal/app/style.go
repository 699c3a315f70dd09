package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"opswatch/internal/decisionlog"
	"opswatch/internal/probe"
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	styleFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleHeader = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Styled cells go in the last column so tabwriter alignment ignores escape codes.
func statusCell(s probe.Status) string {
	switch s {
	case probe.StatusOK:
		return styleOK.Render(strings.ToUpper(string(s)))
	case probe.StatusWarn:
		return styleWarn.Render(strings.ToUpper(string(s)))
	default:
		return styleFail.Render(strings.ToUpper(string(s)))
	}
}

func severityCell(s decisionlog.Severity) string {
	switch s {
	case decisionlog.SeverityHigh:
		return styleFail.Render(string(s))
	case decisionlog.SeverityMed:
		return styleWarn.Render(string(s))
	default:
		return styleMuted.Render(string(s))
	}
}

func heading(text string) string {
	return styleHeader.Render(text)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
