package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

type Status struct {
	Width      int
	Metrics    domain.MetricsSnapshot
	QueueUtil  float64
	lastUpdate time.Time
}

func NewStatus(width int) *Status {
	return &Status{Width: width}
}

func (s *Status) Update(metrics domain.MetricsSnapshot, queueUtil float64) {
	s.Metrics = metrics
	s.QueueUtil = queueUtil
	s.lastUpdate = time.Now()
}

func (s *Status) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	amber := lipgloss.NewStyle().Foreground(colorAmber).Bold(true)
	red := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a2a")).Render(" │ ")

	grade := func(v, warn, crit float64) lipgloss.Style {
		switch {
		case v >= crit:
			return red
		case v >= warn:
			return amber
		}
		return green
	}

	m := s.Metrics
	sink := green.Render("OK")
	if m.CountermeasureBad {
		sink = red.Render("FAIL")
	}

	items := []string{
		s.heartbeat(),
		muted.Render("RATE:") + " " + green.Render(fmtLarge(int64(m.EventsPerSecond))+"/s"),
		muted.Render("PROC:") + " " + green.Render(fmtLarge(m.EventsProcessed)),
		muted.Render("REJ:") + " " + grade(float64(m.EventsRejected), 100, 1000).Render(fmtLarge(m.EventsRejected)),
		muted.Render("FIND:") + " " + grade(float64(m.Findings), 100, 500).Render(fmtLarge(m.Findings)),
		muted.Render("NEW/SUP/ESC:") + " " + green.Render(fmt.Sprintf("%s/%s/%s",
			fmtLarge(m.Admitted), fmtLarge(m.Suppressed), fmtLarge(m.Escalated))),
		muted.Render("BLK:") + " " + grade(float64(m.ActiveBlocks), 10, 100).Render(fmt.Sprintf("%d", m.ActiveBlocks)),
		muted.Render("SINK:") + " " + sink,
		muted.Render("Q:") + " " + grade(s.QueueUtil, 80, 95).Render(fmt.Sprintf("%.0f%%", s.QueueUtil)),
		muted.Render("MEM:") + " " + grade(m.MemoryUsageMB, 500, 1000).Render(fmt.Sprintf("%.0fM", m.MemoryUsageMB)),
		muted.Render("UP:") + " " + green.Render(fmtUptime(m.Uptime.Round(time.Second))),
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(lipgloss.Color("#0a0a0a")).
		Render(strings.Join(items, sep))
}

func (s *Status) heartbeat() string {
	elapsed := time.Since(s.lastUpdate)
	var icon string
	var style lipgloss.Style
	switch {
	case elapsed < 1500*time.Millisecond:
		icon, style = "●", lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	case elapsed < 3*time.Second:
		icon, style = "○", lipgloss.NewStyle().Foreground(colorAmber)
	default:
		icon, style = "○", lipgloss.NewStyle().Foreground(colorRed)
	}
	return lipgloss.NewStyle().Foreground(colorMuted).Render("SYS:") + " " + style.Render(icon)
}

func fmtLarge(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func fmtUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
