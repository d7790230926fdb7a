package views

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/sanitize"
)

// AlertInspector is the full-screen detail view for one alert.
type AlertInspector struct {
	Alert   *domain.Alert
	Width   int
	Height  int
	ScrollY int
	Visible bool
}

func NewAlertInspector() *AlertInspector {
	return &AlertInspector{Width: 80, Height: 24}
}

func (p *AlertInspector) SetAlert(alert *domain.Alert) {
	p.Alert = alert
	p.ScrollY = 0
	p.Visible = alert != nil
}

func (p *AlertInspector) SetDimensions(width, height int) {
	p.Width = width
	p.Height = height
}

func (p *AlertInspector) ScrollUp() {
	if p.ScrollY > 0 {
		p.ScrollY--
	}
}

func (p *AlertInspector) ScrollDown() { p.ScrollY++ }

func (p *AlertInspector) Close() {
	p.Alert = nil
	p.Visible = false
}

func (p *AlertInspector) Render() string {
	if p.Alert == nil {
		return ""
	}
	al := p.Alert
	width := p.Width - 4

	header := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	label := lipgloss.NewStyle().Foreground(colorAmber).Width(14)
	value := lipgloss.NewStyle().Foreground(colorText)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	code := lipgloss.NewStyle().Foreground(colorPrimary).Background(lipgloss.Color("#0a1f0a"))

	rule := dim.Render(strings.Repeat("─", max(width, 10)))
	field := func(name, v string) string {
		return label.Render(name) + " " + value.Render(sanitize.Terminal(v, width-16))
	}

	sev, sevStyle := severityCell(al.Severity)
	lines := []string{
		header.Render(fmt.Sprintf("╔═══ ALERT #%d ═══╗", al.Seq)),
		rule,
		field("ID:", al.ID),
		field("Kind:", string(al.Kind)),
		field("Timestamp:", al.Timestamp.Format("2006-01-02 15:04:05.000")),
		label.Render("Source IP:") + " " + lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render(sanitize.IP(al.SourceIP)),
		field("Signature:", string(al.Signature)),
		label.Render("Severity:") + " " + sevStyle.Render(sev+" "+al.Severity.String()),
	}
	if al.Decision != "" {
		lines = append(lines, field("Decision:", al.Decision))
	}
	lines = append(lines, field("Message:", al.Message))

	if f := al.Finding; f != nil {
		lines = append(lines, "", rule, header.Render("▶ FINDING"),
			field("Finding ID:", f.ID),
			field("Observed:", f.Timestamp.Format("2006-01-02 15:04:05.000")),
		)
	}
	if b := al.Block; b != nil {
		lines = append(lines, "", rule, header.Render("▶ BLOCK"),
			field("Blocked at:", b.BlockedAt.Format("2006-01-02 15:04:05")),
			field("Expires at:", b.ExpiresAt.Format("2006-01-02 15:04:05")),
			field("Duration:", b.ExpiresAt.Sub(b.BlockedAt).String()),
		)
		if b.Reason != "" {
			lines = append(lines, field("Reason:", b.Reason))
		}
	}

	if len(al.Metadata) > 0 {
		lines = append(lines, "", rule, header.Render("▶ EVIDENCE"))
		keys := make([]string, 0, len(al.Metadata))
		for k := range al.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, code.Render(sanitize.Terminal(k+": "+al.Metadata[k], width)))
		}
	}

	lines = append(lines, "", rule, dim.Render("[ESC] Close   [↑/↓] Scroll"))

	if p.ScrollY > 0 && p.ScrollY < len(lines) {
		lines = lines[p.ScrollY:]
	}
	if p.Height > 2 && len(lines) > p.Height-2 {
		lines = lines[:p.Height-2]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1).
		Width(p.Width).
		Height(p.Height).
		Render(strings.Join(lines, "\n"))
}
