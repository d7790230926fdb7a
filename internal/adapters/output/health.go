package output

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// EngineStatus is the read-only view of a running engine used by the
// health check, the status API and the dashboard.
type EngineStatus interface {
	IsRunning() bool
	Metrics() domain.MetricsSnapshot
	QueueLength() int
	QueueCapacity() int
	Degraded() bool
	ActiveBlocks() []*domain.BlockEntry
	LookupBlock(ip netip.Addr) (*domain.BlockEntry, bool)
}

type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Status       string        `json:"status"`
	QueueLength  int           `json:"queue_length"`
	QueueCap     int           `json:"queue_capacity"`
	Utilization  float64       `json:"utilization_percent"`
	ActiveBlocks int           `json:"active_blocks"`
	SinkDegraded bool          `json:"sink_degraded"`
	Uptime       time.Duration `json:"-"`
	UptimeSec    float64       `json:"uptime_seconds"`
	Reason       string        `json:"reason,omitempty"`
}

// HealthChecker grades the engine from its queue pressure and sink
// health. Results are cached for CheckInterval.
type HealthChecker struct {
	engine EngineStatus

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	CheckInterval time.Duration
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{CheckInterval: 5 * time.Second}
}

func NewHealthChecker(engine EngineStatus, config HealthCheckerConfig) *HealthChecker {
	return &HealthChecker{engine: engine, checkInterval: config.CheckInterval}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.lastCheckMu.RLock()
	if !h.lastCheckTime.IsZero() && time.Since(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck()

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = time.Now()
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck() HealthStatus {
	var status HealthStatus
	if h.engine == nil || !h.engine.IsRunning() {
		status.Status = "OFFLINE"
		status.Reason = "engine not running"
		return status
	}

	snap := h.engine.Metrics()
	status.Uptime = snap.Uptime
	status.UptimeSec = snap.Uptime.Seconds()
	status.QueueLength = h.engine.QueueLength()
	status.QueueCap = h.engine.QueueCapacity()
	if status.QueueCap > 0 {
		status.Utilization = float64(status.QueueLength) / float64(status.QueueCap) * 100
	}
	status.ActiveBlocks = snap.ActiveBlocks
	status.SinkDegraded = h.engine.Degraded()

	switch {
	case status.Utilization >= 95:
		status.Status = "SATURATED"
		status.Reason = fmt.Sprintf("queue utilization at %.1f%%", status.Utilization)
	case status.SinkDegraded:
		status.Healthy = true
		status.Status = "DEGRADED"
		status.Reason = "countermeasure sink failing"
	case status.Utilization >= 80:
		status.Healthy = true
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("queue utilization elevated at %.1f%%", status.Utilization)
	default:
		status.Healthy = true
		status.Status = "HEALTHY"
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
