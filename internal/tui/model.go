package tui

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const (
	viewAlerts = iota
	viewSources
	viewBlocks
	viewCount
)

var viewNames = [viewCount]string{"ALERTS", "SOURCES", "BLOCKS"}

// Model is the dashboard state shared between the alert callback and the
// bubbletea loop.
type Model struct {
	Width  int
	Height int

	ActiveView int

	Alerts    []*domain.Alert
	TopIPs    []*IPEntry
	Blocks    []*domain.BlockEntry
	Metrics   domain.MetricsSnapshot
	Sparkline []float64

	ipMap  map[string]*IPEntry
	ipHeap *ipMaxHeap

	MaxAlerts      int
	MaxTopIPs      int
	MaxTrackedIPs  int
	SparklineWidth int

	mu          sync.RWMutex
	findings    int
	blockEvents int
	worst       domain.Severity
}

// IPEntry aggregates the finding alerts of one source.
type IPEntry struct {
	IP         string
	Findings   int
	LastSeen   string
	Worst      domain.Severity
	Signatures []string
	heapIndex  int
}

type ipMaxHeap []*IPEntry

func (h ipMaxHeap) Len() int           { return len(h) }
func (h ipMaxHeap) Less(i, j int) bool { return h[i].Findings > h[j].Findings }
func (h ipMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *ipMaxHeap) Push(x any) {
	item := x.(*IPEntry)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}

func (h *ipMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[:n-1]
	return item
}

func NewModel() *Model {
	h := &ipMaxHeap{}
	heap.Init(h)
	return &Model{
		Width:          120,
		Height:         40,
		Alerts:         make([]*domain.Alert, 0, 100),
		Sparkline:      make([]float64, 60),
		ipMap:          make(map[string]*IPEntry),
		ipHeap:         h,
		MaxAlerts:      200,
		MaxTopIPs:      25,
		MaxTrackedIPs:  10000,
		SparklineWidth: 60,
	}
}

// Track folds a finding alert into the per-source table. Block and health
// alerts only bump the block counter.
func (m *Model) Track(alert *domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.Kind != domain.AlertKindFinding {
		if alert.Kind == domain.AlertKindBlock {
			m.blockEvents++
		}
		return
	}
	if !alert.SourceIP.IsValid() {
		return
	}
	m.findings++
	m.worst = domain.MaxSeverity(m.worst, alert.Severity)

	ip := alert.SourceIP.String()
	sig := string(alert.Signature)
	if entry, ok := m.ipMap[ip]; ok {
		entry.Findings++
		entry.LastSeen = alert.Timestamp.Format("15:04:05")
		entry.Worst = domain.MaxSeverity(entry.Worst, alert.Severity)
		if !contains(entry.Signatures, sig) && len(entry.Signatures) < 5 {
			entry.Signatures = append(entry.Signatures, sig)
		}
		heap.Fix(m.ipHeap, entry.heapIndex)
		return
	}

	if len(m.ipMap) >= m.MaxTrackedIPs {
		m.evictLeast()
	}
	entry := &IPEntry{
		IP:         ip,
		Findings:   1,
		LastSeen:   alert.Timestamp.Format("15:04:05"),
		Worst:      alert.Severity,
		Signatures: []string{sig},
	}
	m.ipMap[ip] = entry
	heap.Push(m.ipHeap, entry)
}

func (m *Model) evictLeast() {
	if m.ipHeap.Len() == 0 {
		return
	}
	minIdx := 0
	for i := 1; i < m.ipHeap.Len(); i++ {
		if (*m.ipHeap)[i].Findings < (*m.ipHeap)[minIdx].Findings {
			minIdx = i
		}
	}
	old := heap.Remove(m.ipHeap, minIdx).(*IPEntry)
	delete(m.ipMap, old.IP)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *Model) AddAlert(alert *domain.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Alerts) >= m.MaxAlerts {
		copy(m.Alerts, m.Alerts[1:])
		m.Alerts = m.Alerts[:len(m.Alerts)-1]
	}
	m.Alerts = append(m.Alerts, alert)
}

func (m *Model) SetBlocks(blocks []*domain.BlockEntry) {
	sorted := make([]*domain.BlockEntry, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExpiresAt.Before(sorted[j].ExpiresAt) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blocks = sorted
}

func (m *Model) UpdateMetrics(metrics domain.MetricsSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metrics = metrics
	m.Sparkline = append(m.Sparkline[1:], metrics.EventsPerSecond)
}

func (m *Model) GetAlerts() []*domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Alert, len(m.Alerts))
	copy(result, m.Alerts)
	return result
}

// GetTopIPs returns up to MaxTopIPs sources ordered by finding count.
func (m *Model) GetTopIPs() []*IPEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := make([]*IPEntry, len(*m.ipHeap))
	copy(top, *m.ipHeap)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Findings != top[j].Findings {
			return top[i].Findings > top[j].Findings
		}
		return top[i].IP < top[j].IP
	})
	if len(top) > m.MaxTopIPs {
		top = top[:m.MaxTopIPs]
	}
	m.TopIPs = top
	result := make([]*IPEntry, len(top))
	copy(result, top)
	return result
}

func (m *Model) GetBlocks() []*domain.BlockEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.BlockEntry, len(m.Blocks))
	copy(result, m.Blocks)
	return result
}

func (m *Model) GetMetrics() domain.MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Metrics
}

func (m *Model) TotalFindings() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findings
}

func (m *Model) BlockEvents() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockEvents
}

// Worst is the highest severity seen on any finding alert so far.
func (m *Model) Worst() (domain.Severity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worst, m.findings > 0
}

func (m *Model) TotalTrackedIPs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ipMap)
}

func (m *Model) SetDimensions(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Width = width
	m.Height = height
}

func (m *Model) NextView() {
	m.ActiveView = (m.ActiveView + 1) % viewCount
}
