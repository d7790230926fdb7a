package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/bus"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/countermeasure"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/detection"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/input"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/output"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/store"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/app"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

var _ output.EngineStatus = (*app.Engine)(nil)

// runtimeOptions are the per-command choices layered over EngineConfig.
type runtimeOptions struct {
	Sources       []ports.RecordSource
	Deterministic bool
	JSONStdout    bool
	Subscribers   []ports.AlertSubscriber
	// InMemoryStore skips the bolt file, e.g. for replays.
	InMemoryStore bool
}

// runtime is an assembled engine plus the adapters main has to close or
// expose.
type runtime struct {
	Engine    *app.Engine
	Detectors *detection.Set
	Metrics   *output.PrometheusMetrics
	Memory    *output.MemoryAlerter
	Sinks     []ports.BlockSink

	nc *nats.Conn
}

func (r *runtime) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}

// natsConn dials lazily so that NATS is only required when a component
// asks for it.
type natsConn struct {
	url string
	nc  *nats.Conn
}

func (c *natsConn) get() (*nats.Conn, error) {
	if c.nc != nil {
		return c.nc, nil
	}
	nc, err := bus.Connect(c.url, "sentinel")
	if err != nil {
		return nil, err
	}
	c.nc = nc
	return nc, nil
}

func buildDetectors(cfg *app.EngineConfig) (*detection.Set, error) {
	dc := detection.DefaultConfig()
	dc.Enabled = dc.Enabled[:0]
	for _, name := range cfg.Detection.Enabled {
		f, ok := detection.ParseFamily(name)
		if !ok {
			return nil, fmt.Errorf("unknown detector %q", name)
		}
		dc.Enabled = append(dc.Enabled, f)
	}
	dc.PortScan.Threshold = cfg.Detection.PortScanThreshold
	dc.PortScan.Window = cfg.Detection.PortScanWindow
	dc.SYNFlood.Threshold = cfg.Detection.SYNFloodThreshold
	dc.SYNFlood.Window = cfg.Detection.SYNFloodWindow
	dc.CleanupInterval = cfg.Detection.CleanupInterval

	if path := cfg.Detection.RulesFile; path != "" {
		rules, err := detection.LoadRules(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		dc.ExtraRules = rules
		log.Info().Str("file", path).Int("families", len(rules)).Msg("Custom signature rules loaded")
	}
	return detection.Build(dc)
}

func assemble(cfg *app.EngineConfig, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{}
	conn := &natsConn{url: cfg.NATSURL}
	ok := false
	defer func() {
		if !ok {
			if conn.nc != nil {
				conn.nc.Close()
			}
		}
	}()

	set, err := buildDetectors(cfg)
	if err != nil {
		return nil, err
	}
	rt.Detectors = set

	rt.Metrics = output.NewPrometheusMetrics("sentinel")
	ingester, err := input.NewAdapter(input.AdapterConfig{
		Format:   cfg.Input.Format,
		Observer: rt.Metrics,
	})
	if err != nil {
		return nil, err
	}

	sources := opts.Sources
	if cfg.Input.NATSEnabled {
		nc, err := conn.get()
		if err != nil {
			return nil, fmt.Errorf("NATS input: %w", err)
		}
		sources = append(sources, input.NewNATSSource(nc, cfg.Input.NATSSubject, cfg.Input.NATSQueue, cfg.Pipeline.BufferSize))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no input source: use --log, --replay, --demo or enable input.nats")
	}

	var publisher bus.Publisher
	if containsString(cfg.Countermeasure.Sinks, "nats") {
		nc, err := conn.get()
		if err != nil {
			return nil, fmt.Errorf("NATS countermeasure sink: %w", err)
		}
		publisher = nc
	}
	sinks, err := countermeasure.Build(cfg.Countermeasure.Sinks, countermeasure.Options{
		Runner:      countermeasure.ExecRunner{},
		SDNURL:      cfg.Countermeasure.SDNURL,
		SDNDPID:     cfg.Countermeasure.SDNDPID,
		SinkTimeout: cfg.Countermeasure.SinkTimeout,
		Publisher:   publisher,
	})
	if err != nil {
		return nil, err
	}
	rt.Sinks = sinks

	var blockStore ports.BlockStore
	if opts.InMemoryStore || cfg.Countermeasure.StorePath == "" {
		blockStore = store.NewMemoryBlockStore()
	} else {
		bc := store.DefaultBoltConfig()
		bc.Path = cfg.Countermeasure.StorePath
		bs, err := store.NewBoltBlockStore(bc)
		if err != nil {
			return nil, err
		}
		blockStore = bs
	}

	rt.Memory = output.NewMemoryAlerter(1000)
	alerters := []ports.Alerter{rt.Memory}
	if cfg.Output.JSONEnabled || opts.JSONStdout {
		jc := output.JSONAlerterConfig{Stdout: cfg.Output.JSONStdout || opts.JSONStdout}
		if cfg.Output.JSONPath != "" && !opts.JSONStdout {
			jc.FilePath = cfg.Output.JSONPath
			jc.Stdout = false
		}
		ja, err := output.NewJSONAlerter(jc)
		if err != nil {
			_ = blockStore.Close()
			return nil, fmt.Errorf("failed to create JSON alerter: %w", err)
		}
		alerters = append(alerters, ja)
	}
	if cfg.Output.NATSEnabled {
		nc, err := conn.get()
		if err != nil {
			_ = blockStore.Close()
			return nil, fmt.Errorf("NATS alert output: %w", err)
		}
		alerters = append(alerters, output.NewNATSAlerter(nc, cfg.Output.NATSSubjectPrefix))
	}

	subscribers := append([]ports.AlertSubscriber{rt.Metrics}, opts.Subscribers...)

	engine, err := app.NewEngine(cfg, app.EngineOptions{
		Sources:        sources,
		Ingester:       ingester,
		Detectors:      set.Detectors,
		DetectorSet:    set,
		Sinks:          sinks,
		Store:          blockStore,
		Alerters:       alerters,
		Subscribers:    subscribers,
		Collector:      rt.Metrics,
		Observer:       rt.Metrics,
		Countermeasure: rt.Metrics,
		Deterministic:  opts.Deterministic,
	})
	if err != nil {
		_ = blockStore.Close()
		return nil, err
	}
	rt.Engine = engine
	rt.Metrics.RegisterQueueGauge(engine.QueueLength)
	rt.nc = conn.nc
	ok = true
	return rt, nil
}

// startAPI serves /metrics, /healthz, /status, /blocks and /alerts when
// enabled.
func startAPI(cfg *app.EngineConfig, rt *runtime, mode string) func() {
	if !cfg.Output.HTTPEnabled {
		return func() {}
	}
	api := output.NewAPIServer(output.APIConfig{
		Engine:  rt.Engine,
		Alerts:  rt.Memory,
		Metrics: rt.Metrics,
		Health:  output.DefaultHealthCheckerConfig(),
		Name:    "sentinel",
		Mode:    mode,
	})
	api.Start(cfg.Output.HTTPAddr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Status API shutdown error")
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
