package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/sanitize"
)

var (
	colorPrimary = lipgloss.Color("#00ff41")
	colorAmber   = lipgloss.Color("#ffb000")
	colorRed     = lipgloss.Color("#ff3333")
	colorMagenta = lipgloss.Color("#ff2bd6")
	colorCyan    = lipgloss.Color("#00b8ff")
	colorText    = lipgloss.Color("#e5e5e5")
	colorMuted   = lipgloss.Color("#707070")
	colorDim     = lipgloss.Color("#404040")
	colorSelect  = lipgloss.Color("#003300")
)

// severityCell returns the three-letter tag and style for a severity.
func severityCell(sev domain.Severity) (string, lipgloss.Style) {
	switch sev {
	case domain.SeverityCritical:
		return "CRT", lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	case domain.SeverityHigh:
		return "HIG", lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	case domain.SeverityMedium:
		return "MED", lipgloss.NewStyle().Foreground(colorAmber)
	default:
		return "LOW", lipgloss.NewStyle().Foreground(colorCyan)
	}
}

// kindTag labels non-finding alerts in the decision column.
func kindTag(al *domain.Alert) string {
	switch al.Kind {
	case domain.AlertKindBlock:
		return "BLOCK"
	case domain.AlertKindUnblock:
		return "UNBLK"
	case domain.AlertKindSystemHealth:
		return "HLTH"
	}
	if al.Decision == "" {
		return "-"
	}
	return al.Decision[:3]
}

// AlertList renders the alert stream newest first with a movable
// selection.
type AlertList struct {
	Alerts        []*domain.Alert
	VisibleCount  int
	ScrollPos     int
	Width         int
	SelectedIndex int
}

func NewAlertList(visibleCount int) *AlertList {
	return &AlertList{
		VisibleCount:  visibleCount,
		Width:         100,
		SelectedIndex: -1,
	}
}

func (a *AlertList) Update(alerts []*domain.Alert) { a.Alerts = alerts }

// ScrollUp moves the selection towards newer alerts.
func (a *AlertList) ScrollUp() {
	if a.SelectedIndex < len(a.Alerts)-1 {
		a.SelectedIndex++
	}
	a.ensureSelectionVisible()
}

func (a *AlertList) ScrollDown() {
	if a.SelectedIndex > 0 {
		a.SelectedIndex--
	}
	a.ensureSelectionVisible()
}

func (a *AlertList) ensureSelectionVisible() {
	n := len(a.Alerts)
	if n <= a.VisibleCount {
		a.ScrollPos = 0
		return
	}
	start, end := a.window()
	switch {
	case a.SelectedIndex < start:
		a.ScrollPos = n - a.VisibleCount - a.SelectedIndex
	case a.SelectedIndex >= end:
		a.ScrollPos = n - 1 - a.SelectedIndex
	}
	if a.ScrollPos < 0 {
		a.ScrollPos = 0
	}
	if maxScroll := n - a.VisibleCount; a.ScrollPos > maxScroll {
		a.ScrollPos = maxScroll
	}
}

// window returns the [start, end) slice of Alerts currently on screen.
func (a *AlertList) window() (int, int) {
	n := len(a.Alerts)
	if n <= a.VisibleCount {
		return 0, n
	}
	start := n - a.VisibleCount - a.ScrollPos
	if start < 0 {
		start = 0
	}
	end := start + a.VisibleCount
	if end > n {
		end = n
	}
	return start, end
}

func (a *AlertList) GetSelected() *domain.Alert {
	if a.SelectedIndex >= 0 && a.SelectedIndex < len(a.Alerts) {
		return a.Alerts[a.SelectedIndex]
	}
	return nil
}

func (a *AlertList) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	selected := lipgloss.NewStyle().Background(colorSelect).Foreground(colorPrimary)

	if len(a.Alerts) == 0 {
		return dim.Italic(true).Render("  No alerts")
	}
	if a.SelectedIndex < 0 {
		a.SelectedIndex = len(a.Alerts) - 1
	}

	lines := []string{
		muted.Bold(true).Render(fmt.Sprintf("  %-6s %-8s  %-3s  %-15s  %-19s  %-5s  %s",
			"SEQ", "TIME", "SEV", "SOURCE", "SIGNATURE", "DEC", "MESSAGE")),
		dim.Render("  " + strings.Repeat("─", max(a.Width-4, 10))),
	}

	start, end := a.window()
	for i := end - 1; i >= start; i-- {
		al := a.Alerts[i]
		isSelected := i == a.SelectedIndex
		prefix := "  "
		if isSelected {
			prefix = "▶ "
		}

		ts := al.Timestamp.Format("15:04:05")
		timeStr := dim.Render(ts)
		if isSelected {
			timeStr = selected.Render(ts)
		}

		sev, sevStyle := severityCell(al.Severity)

		ip := sanitize.IP(al.SourceIP)
		if len(ip) > 15 {
			ip = ip[:12] + "..."
		}
		ipStyle := text
		if al.Kind == domain.AlertKindBlock {
			ipStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
		}
		if isSelected {
			ipStyle = selected.Bold(true)
		}

		sig := sanitize.Terminal(string(al.Signature), 19)
		msgLen := a.Width - 72
		if msgLen < 10 {
			msgLen = 10
		}
		msg := sanitize.Terminal(al.Message, msgLen)

		lines = append(lines, fmt.Sprintf("%s%-6d %s  %s  %s  %s  %-5s  %s",
			prefix,
			al.Seq,
			timeStr,
			sevStyle.Render(sev),
			ipStyle.Render(fmt.Sprintf("%-15s", ip)),
			green.Render(fmt.Sprintf("%-19s", sig)),
			kindTag(al),
			muted.Render(msg),
		))
	}

	if len(a.Alerts) > a.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]",
			a.ScrollPos+1, min(a.ScrollPos+a.VisibleCount, len(a.Alerts)), len(a.Alerts))))
	}
	return strings.Join(lines, "\n")
}
