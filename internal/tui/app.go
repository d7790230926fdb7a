package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/tui/views"
)

const (
	maxAlertsPerTick = 50
	uiTickInterval   = 100 * time.Millisecond
	pollInterval     = time.Second
)

// EngineView is what the dashboard polls from the running engine.
type EngineView interface {
	Metrics() domain.MetricsSnapshot
	QueueLength() int
	QueueCapacity() int
	ActiveBlocks() []*domain.BlockEntry
}

type App struct {
	model      *Model
	engine     EngineView
	throughput *views.Throughput
	alerts     *views.AlertList
	sources    *views.TopSources
	blocks     *views.BlockTable
	status     *views.Status
	inspector  *views.AlertInspector

	ready    bool
	quitting bool
	width    int
	height   int

	alertBuffer    []*domain.Alert
	alertBufferMu  sync.Mutex
	droppedAlerts  int64
	maxAlertBuffer int

	lastFindings int64
	worst        domain.Severity
	hasFindings  bool
	inputSource  string
}

func NewApp(engine EngineView) *App {
	return &App{
		model:          NewModel(),
		engine:         engine,
		throughput:     views.NewThroughput(80),
		alerts:         views.NewAlertList(15),
		sources:        views.NewTopSources(100),
		blocks:         views.NewBlockTable(100),
		status:         views.NewStatus(100),
		inspector:      views.NewAlertInspector(),
		alertBuffer:    make([]*domain.Alert, 0, 100),
		maxAlertBuffer: 500,
		inputSource:    "DEMO",
	}
}

func (a *App) SetInputSource(source string) { a.inputSource = source }

// SetEngine attaches the engine to poll. It must be called before Run.
func (a *App) SetEngine(engine EngineView) { a.engine = engine }

type tickMsg time.Time
type pollMsg time.Time

func (a *App) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, a.tick(), a.poll())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(uiTickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
	case tickMsg:
		a.processBatchedAlerts()
		return a, a.tick()
	case pollMsg:
		a.refresh()
		return a, a.poll()
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.inspector.Visible {
		switch msg.String() {
		case "esc", "q":
			a.inspector.Close()
		case "up", "k":
			a.inspector.ScrollUp()
		case "down", "j":
			a.inspector.ScrollDown()
		}
		return nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		return tea.Quit
	case "tab":
		a.model.NextView()
	case "m":
		a.throughput.Toggle()
	case "up", "k":
		a.alerts.ScrollUp()
	case "down", "j":
		a.alerts.ScrollDown()
	case "enter":
		if a.model.ActiveView == viewAlerts {
			a.inspector.SetAlert(a.alerts.GetSelected())
		}
	}
	return nil
}

func (a *App) resize(width, height int) {
	a.width, a.height = width, height
	a.ready = true
	a.model.SetDimensions(width, height)
	a.alerts.Width = width - 4
	a.sources.Width = width - 4
	a.blocks.Width = width - 4
	a.status.Width = width
	a.throughput.SetWidth(width - 16)

	content := max(height-12, 5)
	a.alerts.VisibleCount = content
	a.sources.VisibleCount = content
	a.blocks.VisibleCount = content

	a.inspector.SetDimensions(width-4, height-2)
}

// refresh pulls metrics and the block list from the engine.
func (a *App) refresh() {
	if a.engine == nil {
		return
	}
	snap := a.engine.Metrics()
	a.model.UpdateMetrics(snap)
	a.throughput.Update(snap.EventsPerSecond, snap.Findings > a.lastFindings)
	a.lastFindings = snap.Findings

	var util float64
	if c := a.engine.QueueCapacity(); c > 0 {
		util = float64(a.engine.QueueLength()) / float64(c) * 100
	}
	a.status.Update(snap, util)

	a.model.SetBlocks(a.engine.ActiveBlocks())
	a.blocks.Update(a.model.GetBlocks())
}

func (a *App) processBatchedAlerts() {
	a.sources.Update(a.sourceEntries())

	a.alertBufferMu.Lock()
	defer a.alertBufferMu.Unlock()
	if len(a.alertBuffer) == 0 {
		return
	}
	count := min(len(a.alertBuffer), maxAlertsPerTick)
	for _, al := range a.alertBuffer[:count] {
		a.model.AddAlert(al)
	}
	a.alertBuffer = a.alertBuffer[count:]
	a.alerts.Update(a.model.GetAlerts())
	a.worst, a.hasFindings = a.model.Worst()
}

func (a *App) sourceEntries() []*views.SourceEntry {
	blocked := make(map[string]bool)
	for _, b := range a.model.GetBlocks() {
		blocked[b.SourceIP.String()] = true
	}
	top := a.model.GetTopIPs()
	out := make([]*views.SourceEntry, len(top))
	for i, e := range top {
		out[i] = &views.SourceEntry{
			IP:         e.IP,
			Findings:   e.Findings,
			LastSeen:   e.LastSeen,
			Worst:      e.Worst,
			Blocked:    blocked[e.IP],
			Signatures: e.Signatures,
		}
	}
	return out
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Session terminated.\n\n"
	}
	if !a.ready {
		return "\n  Initializing...\n\n"
	}
	if a.inspector.Visible {
		return a.inspector.Render()
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(TextDim.Render(strings.Repeat("─", a.width)))
	b.WriteString("\n")
	b.WriteString(a.throughput.Render())
	b.WriteString("\n\n")

	var content string
	switch a.model.ActiveView {
	case viewSources:
		content = a.sources.Render()
	case viewBlocks:
		content = a.blocks.Render()
	default:
		content = a.alerts.Render()
	}
	b.WriteString(TextMuted.Render("  " + viewNames[a.model.ActiveView]))
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString("\n\n")
	b.WriteString(a.status.Render())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())
	return b.String()
}

func (a *App) renderHeader() string {
	title := TextPrimary.Bold(true).Render("SENTINEL")

	state := TextPrimary.Bold(true).Render("MONITORING")
	if a.hasFindings {
		state = ForSeverity(a.worst).Render("THREATS: " + a.worst.String())
	}
	if m := a.model.GetMetrics(); m.CountermeasureBad {
		state += "  " + lipgloss.NewStyle().Foreground(ColorCritical).Bold(true).Render("SINK DEGRADED")
	}

	return fmt.Sprintf("  %s  %s  %s %s", title, state, TextDim.Render("SRC:"), a.inputSource)
}

func (a *App) renderHelp() string {
	key := lipgloss.NewStyle().Foreground(ColorPrimaryDim)
	return TextDim.Render(fmt.Sprintf("  %s [%s]  %s scroll  %s inspect  %s trace  %s quit",
		key.Render("TAB"), viewNames[a.model.ActiveView], key.Render("↑↓"),
		key.Render("ENTER"), key.Render("m"), key.Render("q")))
}

// OnAlert implements ports.AlertSubscriber. It runs on the emitter's
// dispatcher goroutine and only buffers; the UI tick drains the buffer.
func (a *App) OnAlert(alert *domain.Alert) {
	a.model.Track(alert)

	a.alertBufferMu.Lock()
	defer a.alertBufferMu.Unlock()
	if len(a.alertBuffer) >= a.maxAlertBuffer {
		drop := a.maxAlertBuffer / 10
		a.droppedAlerts += int64(drop)
		a.alertBuffer = a.alertBuffer[drop:]
	}
	a.alertBuffer = append(a.alertBuffer, alert)
}

func (a *App) GetModel() *Model { return a.model }

func (a *App) DroppedAlerts() int64 {
	a.alertBufferMu.Lock()
	defer a.alertBufferMu.Unlock()
	return a.droppedAlerts
}

func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
