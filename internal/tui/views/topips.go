package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/sanitize"
)

type SourceEntry struct {
	IP         string
	Findings   int
	LastSeen   string
	Worst      domain.Severity
	Blocked    bool
	Signatures []string
}

// TopSources ranks sources by finding count.
type TopSources struct {
	Sources      []*SourceEntry
	Width        int
	VisibleCount int
}

func NewTopSources(width int) *TopSources {
	return &TopSources{Width: width, VisibleCount: 25}
}

func (v *TopSources) Update(sources []*SourceEntry) { v.Sources = sources }

func (v *TopSources) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	red := lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	if len(v.Sources) == 0 {
		return dim.Italic(true).Render("  No hostile sources")
	}

	lines := []string{
		muted.Bold(true).Render(fmt.Sprintf(" %-3s %-17s %-12s %-3s %-9s %-4s %s",
			"#", "SOURCE", "FINDINGS", "SEV", "LAST", "BLK", "SIGNATURES")),
		dim.Render(strings.Repeat("─", max(v.Width, 10))),
	}

	peak := 0
	for _, s := range v.Sources {
		peak = max(peak, s.Findings)
	}

	visible := v.Sources
	if len(visible) > v.VisibleCount {
		visible = visible[:v.VisibleCount]
	}

	for i, s := range visible {
		sev, sevStyle := severityCell(s.Worst)

		ip := sanitize.Terminal(s.IP, 17)
		ipStyle := text
		if s.Blocked {
			ipStyle = red
		}

		const barWidth = 6
		fill := 0
		if peak > 0 {
			fill = min(s.Findings*barWidth/peak, barWidth)
		}
		bar := strings.Repeat("█", fill) + strings.Repeat("░", barWidth-fill)

		blk := dim.Render(" -  ")
		if s.Blocked {
			blk = red.Render(" ●  ")
		}

		sigs := make([]string, len(s.Signatures))
		for j, sig := range s.Signatures {
			sigs[j] = sanitize.Field(sig)
		}
		sigLen := max(v.Width-56, 10)

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s %s",
			muted.Render(fmt.Sprintf("%2d.", i+1)),
			ipStyle.Render(padRight(ip, 17)),
			sevStyle.Render(fmt.Sprintf("%s %5s", bar, fmtLarge(int64(s.Findings)))),
			sevStyle.Render(sev),
			muted.Render(padRight(s.LastSeen, 9)),
			blk,
			text.Render(sanitize.Terminal(strings.Join(sigs, ", "), sigLen)),
		))
	}

	if len(v.Sources) > v.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d sources]", v.VisibleCount, len(v.Sources))))
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	return s + strings.Repeat(" ", length-len(s))
}
