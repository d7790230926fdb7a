package output

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// APIServer exposes engine state over HTTP:
//
//	GET /healthz          health grade, 503 when unhealthy
//	GET /status           metrics snapshot
//	GET /blocks           active block list
//	GET /blocks/{ip}      one block entry, 404 when not blocked
//	GET /alerts?since=N   recent alerts with Seq > N
//	GET /metrics          Prometheus exposition
type APIServer struct {
	engine  EngineStatus
	health  *HealthChecker
	alerts  *MemoryAlerter
	metrics *PrometheusMetrics
	router  *mux.Router
	name    string
	mode    string

	mu     sync.Mutex
	server *http.Server
}

type APIConfig struct {
	Engine  EngineStatus
	Alerts  *MemoryAlerter     // optional
	Metrics *PrometheusMetrics // optional
	Health  HealthCheckerConfig
	Name    string // reported by /status
	Mode    string // "live" or "deterministic"
}

func NewAPIServer(cfg APIConfig) *APIServer {
	s := &APIServer{
		engine:  cfg.Engine,
		health:  NewHealthChecker(cfg.Engine, cfg.Health),
		alerts:  cfg.Alerts,
		metrics: cfg.Metrics,
		router:  mux.NewRouter(),
		name:    cfg.Name,
		mode:    cfg.Mode,
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Handle("/healthz", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/blocks", s.handleBlocks).Methods(http.MethodGet)
	s.router.HandleFunc("/blocks/{ip}", s.handleBlock).Methods(http.MethodGet)
	s.router.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusResponse struct {
	Name    string                 `json:"name,omitempty"`
	Mode    string                 `json:"mode,omitempty"`
	Running bool                   `json:"running"`
	Uptime  float64                `json:"uptime_seconds"`
	Blocks  int                    `json:"active_blocks"`
	Metrics domain.MetricsSnapshot `json:"metrics"`
	Queue   int                    `json:"queue_length"`
	Time    time.Time              `json:"time"`
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Metrics()
	writeJSON(w, http.StatusOK, statusResponse{
		Name:    s.name,
		Mode:    s.mode,
		Running: s.engine.IsRunning(),
		Uptime:  snap.Uptime.Seconds(),
		Blocks:  snap.ActiveBlocks,
		Metrics: snap,
		Queue:   s.engine.QueueLength(),
		Time:    time.Now().UTC(),
	})
}

func (s *APIServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	blocks := s.engine.ActiveBlocks()
	if blocks == nil {
		blocks = []*domain.BlockEntry{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (s *APIServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	ip, err := netip.ParseAddr(mux.Vars(r)["ip"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	entry, ok := s.engine.LookupBlock(ip.Unmap())
	if !ok {
		writeError(w, http.StatusNotFound, "not blocked")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *APIServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusNotFound, "alert buffer disabled")
		return
	}
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = n
	}
	alerts := s.alerts.SinceSeq(since)
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Start serves on addr in the background.
func (s *APIServer) Start(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	go func() {
		log.Info().Str("addr", addr).Msg("Starting status API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Status API server error")
		}
	}()
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
