package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

var (
	ColorBg         = lipgloss.Color("#0a0a0a")
	ColorBgAlt      = lipgloss.Color("#0f0f0f")
	ColorBorder     = lipgloss.Color("#1a3a1a")
	ColorPrimary    = lipgloss.Color("#00ff41")
	ColorPrimaryDim = lipgloss.Color("#00aa2a")
	ColorPrimaryBg  = lipgloss.Color("#0a1f0a")
	ColorAmber      = lipgloss.Color("#ffb000")
	ColorRed        = lipgloss.Color("#ff3333")
	ColorMagenta    = lipgloss.Color("#ff2bd6")
	ColorCyan       = lipgloss.Color("#00b8ff")
	ColorCritical   = ColorRed
	ColorText       = lipgloss.Color("#e5e5e5")
	ColorMuted      = lipgloss.Color("#707070")
	ColorDim        = lipgloss.Color("#404040")
)

var (
	TextPrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	TextAmber   = lipgloss.NewStyle().Foreground(ColorAmber)
	TextRed     = lipgloss.NewStyle().Foreground(ColorRed)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	TextDim     = lipgloss.NewStyle().Foreground(ColorDim)
)

var LogoSmall = TextPrimary.Render(`▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄
█  ╔═╗╔═╗╔╗╔╔╦╗╦╔╗╔╔═╗╦    │ INTRUSION     █
█  ╚═╗║╣ ║║║ ║ ║║║║║╣ ║    │ RESPONSE      █
█  ╚═╝╚═╝╝╚╝ ╩ ╩╝╚╝╚═╝╩═╝  │ CONSOLE       █
▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀`)

// ForSeverity picks the header colour for the highest severity seen.
func ForSeverity(sev domain.Severity) lipgloss.Style {
	switch sev {
	case domain.SeverityCritical:
		return lipgloss.NewStyle().Foreground(ColorMagenta).Bold(true)
	case domain.SeverityHigh:
		return TextRed.Bold(true)
	case domain.SeverityMedium:
		return TextAmber.Bold(true)
	default:
		return TextPrimary.Bold(true)
	}
}
