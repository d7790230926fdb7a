package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var signalChars = []rune{'⎽', '⎼', '─', '⎻', '⎺'}

var barChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Throughput draws the events-per-second history as an oscilloscope trace
// or a bar chart. Samples that carried new findings are marked in red.
type Throughput struct {
	Data        []float64
	Hits        []bool
	Width       int
	OscilloMode bool

	// Warn and Alarm are the rates at which the trace turns amber and red.
	Warn  float64
	Alarm float64
}

func NewThroughput(width int) *Throughput {
	if width <= 0 {
		width = 60
	}
	return &Throughput{
		Data:        make([]float64, width),
		Hits:        make([]bool, width),
		Width:       width,
		OscilloMode: true,
		Warn:        10000,
		Alarm:       50000,
	}
}

// Update appends a sample. hit marks a sample during which findings were
// produced.
func (t *Throughput) Update(value float64, hit bool) {
	t.Data = append(t.Data[1:], value)
	t.Hits = append(t.Hits[1:], hit)
}

func (t *Throughput) SetWidth(width int) {
	if width <= 0 || width == t.Width {
		return
	}
	t.Data = resize(t.Data, width)
	t.Hits = resize(t.Hits, width)
	t.Width = width
}

// resize keeps the newest samples right-aligned.
func resize[T any](old []T, width int) []T {
	out := make([]T, width)
	if len(old) > width {
		old = old[len(old)-width:]
	}
	copy(out[width-len(old):], old)
	return out
}

func (t *Throughput) Toggle() { t.OscilloMode = !t.OscilloMode }

func (t *Throughput) Render() string {
	current, peak := t.stats()
	color := lipgloss.NewStyle().Foreground(colorPrimary)
	switch {
	case current > t.Alarm:
		color = lipgloss.NewStyle().Foreground(colorRed)
	case current > t.Warn:
		color = lipgloss.NewStyle().Foreground(colorAmber)
	}
	hit := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	dim := lipgloss.NewStyle().Foreground(colorDim)

	chars := barChars
	if t.OscilloMode {
		chars = signalChars
	}

	var b strings.Builder
	b.WriteString(" ")
	for i, v := range t.Data {
		if t.OscilloMode && i > 0 && i%10 == 0 {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#252525")).Render("│"))
			continue
		}
		ch := string(chars[level(v, peak, len(chars))])
		switch {
		case t.Hits[i]:
			b.WriteString(hit.Render(ch))
		case v == 0:
			b.WriteString(dim.Render(ch))
		default:
			b.WriteString(color.Render(ch))
		}
	}
	b.WriteString(color.Bold(true).Render(" ▶ " + fmtRate(current)))
	return b.String()
}

func (t *Throughput) stats() (current, peak float64) {
	for _, v := range t.Data {
		if v > peak {
			peak = v
		}
	}
	if len(t.Data) > 0 {
		current = t.Data[len(t.Data)-1]
	}
	if peak < 100 {
		peak = 100
	}
	return current, peak
}

func level(v, peak float64, steps int) int {
	if v <= 0 || peak <= 0 {
		return 0
	}
	l := int(v / peak * float64(steps-1))
	if l >= steps {
		l = steps - 1
	}
	return l
}

func fmtRate(v float64) string {
	switch {
	case v >= 1000000:
		return fmt.Sprintf("%.1fM/s", v/1000000)
	case v >= 1000:
		return fmt.Sprintf("%.1fK/s", v/1000)
	default:
		return fmt.Sprintf("%.0f/s", v)
	}
}
