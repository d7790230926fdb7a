package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	EventsProcessed   int64
	EventsRejected    int64
	Findings          int64
	Admitted          int64
	Suppressed        int64
	Escalated         int64
	TotalAlerts       int64
	BlocksIssued      int64
	ActiveBlocks      int
	SinkFailures      int64
	EventsPerSecond   float64
	ActiveLanes       int
	MemoryUsageMB     float64
	Uptime            time.Duration
	StartTime         time.Time
	CountermeasureBad bool
}

// EngineMetrics holds the counters shown by the dashboard and status API.
type EngineMetrics struct {
	events       atomic.Int64
	rejected     atomic.Int64
	findings     atomic.Int64
	admitted     atomic.Int64
	suppressed   atomic.Int64
	escalated    atomic.Int64
	alerts       atomic.Int64
	blocksIssued atomic.Int64
	sinkFailures atomic.Int64
	activeBlocks atomic.Int64
	degraded     atomic.Bool

	mu            sync.RWMutex
	eps           float64
	activeLanes   int
	memoryUsageMB float64
	startTime     time.Time
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{startTime: time.Now()}
}

func (m *EngineMetrics) IncrementEvents()     { m.events.Add(1) }
func (m *EngineMetrics) IncrementRejected()   { m.rejected.Add(1) }
func (m *EngineMetrics) AddFindings(n int)    { m.findings.Add(int64(n)) }
func (m *EngineMetrics) IncrementAlerts()     { m.alerts.Add(1) }
func (m *EngineMetrics) IncrementBlocks()     { m.blocksIssued.Add(1) }
func (m *EngineMetrics) IncrementSinkErrors() { m.sinkFailures.Add(1) }

func (m *EngineMetrics) RecordDecision(d Decision) {
	switch d {
	case DecisionNew:
		m.admitted.Add(1)
	case DecisionSuppressed:
		m.suppressed.Add(1)
	case DecisionEscalated:
		m.admitted.Add(1)
		m.escalated.Add(1)
	}
}

func (m *EngineMetrics) SetActiveBlocks(n int) { m.activeBlocks.Store(int64(n)) }
func (m *EngineMetrics) SetDegraded(v bool)    { m.degraded.Store(v) }

func (m *EngineMetrics) TotalEvents() int64 { return m.events.Load() }

func (m *EngineMetrics) UpdateEPS(eps float64) {
	m.mu.Lock()
	m.eps = eps
	m.mu.Unlock()
}

func (m *EngineMetrics) SetActiveLanes(n int) {
	m.mu.Lock()
	m.activeLanes = n
	m.mu.Unlock()
}

func (m *EngineMetrics) SetMemoryUsage(mb float64) {
	m.mu.Lock()
	m.memoryUsageMB = mb
	m.mu.Unlock()
}

func (m *EngineMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		EventsProcessed:   m.events.Load(),
		EventsRejected:    m.rejected.Load(),
		Findings:          m.findings.Load(),
		Admitted:          m.admitted.Load(),
		Suppressed:        m.suppressed.Load(),
		Escalated:         m.escalated.Load(),
		TotalAlerts:       m.alerts.Load(),
		BlocksIssued:      m.blocksIssued.Load(),
		ActiveBlocks:      int(m.activeBlocks.Load()),
		SinkFailures:      m.sinkFailures.Load(),
		EventsPerSecond:   m.eps,
		ActiveLanes:       m.activeLanes,
		MemoryUsageMB:     m.memoryUsageMB,
		Uptime:            time.Since(m.startTime),
		StartTime:         m.startTime,
		CountermeasureBad: m.degraded.Load(),
	}
}
