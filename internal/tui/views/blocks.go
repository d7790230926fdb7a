package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/pkg/sanitize"
)

// BlockTable lists the controller's active blocks, soonest expiry first.
type BlockTable struct {
	Blocks       []*domain.BlockEntry
	Width        int
	VisibleCount int
	Now          func() time.Time
}

func NewBlockTable(width int) *BlockTable {
	return &BlockTable{Width: width, VisibleCount: 25, Now: time.Now}
}

func (v *BlockTable) Update(blocks []*domain.BlockEntry) { v.Blocks = blocks }

func (v *BlockTable) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	amber := lipgloss.NewStyle().Foreground(colorAmber).Bold(true)
	red := lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	if len(v.Blocks) == 0 {
		return dim.Italic(true).Render("  No active blocks")
	}

	lines := []string{
		muted.Bold(true).Render(fmt.Sprintf(" %-17s %-19s %-3s %-9s %-9s %-8s %s",
			"SOURCE", "SIGNATURE", "SEV", "BLOCKED", "EXPIRES", "REFRESH", "STATE")),
		dim.Render(strings.Repeat("─", max(v.Width, 10))),
	}

	now := v.Now()
	visible := v.Blocks
	if len(visible) > v.VisibleCount {
		visible = visible[:v.VisibleCount]
	}
	for _, b := range visible {
		sev, sevStyle := severityCell(b.Reason.Severity)

		remaining := b.Remaining(now).Round(time.Second)
		expStyle := text
		if remaining < time.Minute {
			expStyle = amber
		}

		state := lipgloss.NewStyle().Foreground(colorPrimary).Render("ENFORCED")
		if b.Pending != domain.PendingNone {
			state = red.Render(fmt.Sprintf("PENDING %s (%d tries)", strings.ToUpper(string(b.Pending)), b.Attempts))
		}

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s %s",
			red.Render(padRight(sanitize.IP(b.SourceIP), 17)),
			text.Render(padRight(string(b.Reason.Signature), 19)),
			sevStyle.Render(sev),
			muted.Render(padRight(b.BlockedAt.Format("15:04:05"), 9)),
			expStyle.Render(padRight(remaining.String(), 9)),
			muted.Render(padRight(fmt.Sprintf("%d", b.Refreshes), 8)),
			state,
		))
	}

	if len(v.Blocks) > v.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d blocks]", v.VisibleCount, len(v.Blocks))))
	}
	return strings.Join(lines, "\n")
}
