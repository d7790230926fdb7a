package app

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// SENTINEL_DEDUP_COOLDOWN=45s.
const EnvPrefix = "SENTINEL"

var defaultFamilies = []string{"sqli", "xss", "cmd_injection", "dir_traversal", "recon", "port_scan", "syn_flood"}

var knownSinks = map[string]bool{
	"log":       true,
	"iptables":  true,
	"netsh":     true,
	"sdn":       true,
	"nats":      true,
	"recording": true,
}

// EngineConfig is the validated runtime configuration.
type EngineConfig struct {
	Detection      DetectionSettings
	Dedup          DedupSettings
	Countermeasure CountermeasureSettings
	Pipeline       PipelineConfig
	Input          InputSettings
	NATSURL        string
	Output         OutputSettings
	LogLevel       string
}

type DetectionSettings struct {
	Enabled           []string
	PortScanThreshold int
	PortScanWindow    time.Duration
	SYNFloodThreshold int
	SYNFloodWindow    time.Duration
	RulesFile         string
	CleanupInterval   time.Duration
}

type DedupSettings struct {
	Cooldown           time.Duration
	EscalationCount    int
	MaxEntriesPerShard int
}

type CountermeasureSettings struct {
	BlockThreshold  string
	BlockDuration   time.Duration
	SweepInterval   time.Duration
	SinkTimeout     time.Duration
	MaxSinkFailures int
	Sinks           []string
	SDNURL          string
	SDNDPID         int
	StorePath       string
}

type InputSettings struct {
	Format      string
	NATSEnabled bool
	NATSSubject string
	NATSQueue   string
}

type OutputSettings struct {
	JSONEnabled       bool
	JSONPath          string
	JSONStdout        bool
	NATSEnabled       bool
	NATSSubjectPrefix string
	HTTPEnabled       bool
	HTTPAddr          string
	// OverflowPath receives alerts the emitter could not queue in time.
	OverflowPath      string
}

// SetDefaults registers every recognized option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("detection.port_scan.threshold", 20)
	v.SetDefault("detection.port_scan.window", "60s")
	v.SetDefault("detection.syn_flood.threshold", 100)
	v.SetDefault("detection.syn_flood.window", "5s")
	v.SetDefault("detection.enabled", defaultFamilies)
	v.SetDefault("detection.rules_file", "")
	v.SetDefault("detection.cleanup_interval", "30s")

	v.SetDefault("dedup.cooldown", "30s")
	v.SetDefault("dedup.escalation_count", 3)
	v.SetDefault("dedup.max_entries_per_shard", 10000)

	v.SetDefault("countermeasure.block_threshold", "HIGH")
	v.SetDefault("countermeasure.block_duration", "10m")
	v.SetDefault("countermeasure.sweep_interval", "5s")
	v.SetDefault("countermeasure.sink_timeout", "3s")
	v.SetDefault("countermeasure.max_sink_failures", 3)
	v.SetDefault("countermeasure.sinks", []string{"log"})
	v.SetDefault("countermeasure.sdn.url", "http://127.0.0.1:8080")
	v.SetDefault("countermeasure.sdn.dpid", 1)
	v.SetDefault("countermeasure.store.path", "./data/blocks.db")

	v.SetDefault("pipeline.lanes", 16)
	v.SetDefault("pipeline.buffer_size", 10000)
	v.SetDefault("pipeline.submit_timeout", "100ms")
	v.SetDefault("pipeline.parallel_detectors", true)
	v.SetDefault("pipeline.overflow_path", "")
	v.SetDefault("pipeline.quarantine_path", "")

	v.SetDefault("input.format", "auto")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("input.nats.enabled", false)
	v.SetDefault("input.nats.subject", "events.raw")
	v.SetDefault("input.nats.queue", "sentinel")

	v.SetDefault("output.json.enabled", false)
	v.SetDefault("output.json.path", "")
	v.SetDefault("output.json.stdout", true)
	v.SetDefault("output.nats.enabled", false)
	v.SetDefault("output.nats.subject_prefix", "alerts")
	v.SetDefault("output.http.enabled", true)
	v.SetDefault("output.http.addr", ":9090")
	v.SetDefault("output.overflow_path", "")

	v.SetDefault("logging.level", "info")
}

// NewViper returns a viper instance with defaults, config search paths and
// environment overrides set up. It does not read the file.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentinel")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEngineConfig reads the settings from v and validates them.
func LoadEngineConfig(v *viper.Viper) (*EngineConfig, error) {
	cfg := &EngineConfig{
		Detection: DetectionSettings{
			Enabled:           v.GetStringSlice("detection.enabled"),
			PortScanThreshold: v.GetInt("detection.port_scan.threshold"),
			PortScanWindow:    v.GetDuration("detection.port_scan.window"),
			SYNFloodThreshold: v.GetInt("detection.syn_flood.threshold"),
			SYNFloodWindow:    v.GetDuration("detection.syn_flood.window"),
			RulesFile:         v.GetString("detection.rules_file"),
			CleanupInterval:   v.GetDuration("detection.cleanup_interval"),
		},
		Dedup: DedupSettings{
			Cooldown:           v.GetDuration("dedup.cooldown"),
			EscalationCount:    v.GetInt("dedup.escalation_count"),
			MaxEntriesPerShard: v.GetInt("dedup.max_entries_per_shard"),
		},
		Countermeasure: CountermeasureSettings{
			BlockThreshold:  v.GetString("countermeasure.block_threshold"),
			BlockDuration:   v.GetDuration("countermeasure.block_duration"),
			SweepInterval:   v.GetDuration("countermeasure.sweep_interval"),
			SinkTimeout:     v.GetDuration("countermeasure.sink_timeout"),
			MaxSinkFailures: v.GetInt("countermeasure.max_sink_failures"),
			Sinks:           v.GetStringSlice("countermeasure.sinks"),
			SDNURL:          v.GetString("countermeasure.sdn.url"),
			SDNDPID:         v.GetInt("countermeasure.sdn.dpid"),
			StorePath:       v.GetString("countermeasure.store.path"),
		},
		Pipeline: PipelineConfig{
			Lanes:             v.GetInt("pipeline.lanes"),
			BufferSize:        v.GetInt("pipeline.buffer_size"),
			SubmitTimeout:     v.GetDuration("pipeline.submit_timeout"),
			ParallelDetectors: v.GetBool("pipeline.parallel_detectors"),
			OverflowPath:      v.GetString("pipeline.overflow_path"),
			QuarantinePath:    v.GetString("pipeline.quarantine_path"),
		},
		Input: InputSettings{
			Format:      v.GetString("input.format"),
			NATSEnabled: v.GetBool("input.nats.enabled"),
			NATSSubject: v.GetString("input.nats.subject"),
			NATSQueue:   v.GetString("input.nats.queue"),
		},
		NATSURL: v.GetString("nats.url"),
		Output: OutputSettings{
			JSONEnabled:       v.GetBool("output.json.enabled"),
			JSONPath:          v.GetString("output.json.path"),
			JSONStdout:        v.GetBool("output.json.stdout"),
			NATSEnabled:       v.GetBool("output.nats.enabled"),
			NATSSubjectPrefix: v.GetString("output.nats.subject_prefix"),
			HTTPEnabled:       v.GetBool("output.http.enabled"),
			HTTPAddr:          v.GetString("output.http.addr"),
			OverflowPath:      v.GetString("output.overflow_path"),
		},
		LogLevel: v.GetString("logging.level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultEngineConfig returns the configuration produced by the defaults
// alone.
func DefaultEngineConfig() *EngineConfig {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadEngineConfig(v)
	if err != nil {
		panic("default configuration is invalid: " + err.Error())
	}
	return cfg
}

// Validate returns a *domain.ConfigurationError for the first invalid
// option.
func (c *EngineConfig) Validate() error {
	d := c.Detection
	if len(d.Enabled) == 0 {
		return &domain.ConfigurationError{Field: "detection.enabled", Value: d.Enabled, Reason: "at least one detector must be enabled"}
	}
	if d.PortScanThreshold < 1 {
		return &domain.ConfigurationError{Field: "detection.port_scan.threshold", Value: d.PortScanThreshold, Reason: "must be positive"}
	}
	if d.PortScanWindow <= 0 {
		return &domain.ConfigurationError{Field: "detection.port_scan.window", Value: d.PortScanWindow, Reason: "must be positive"}
	}
	if d.SYNFloodThreshold < 1 {
		return &domain.ConfigurationError{Field: "detection.syn_flood.threshold", Value: d.SYNFloodThreshold, Reason: "must be positive"}
	}
	if d.SYNFloodWindow <= 0 {
		return &domain.ConfigurationError{Field: "detection.syn_flood.window", Value: d.SYNFloodWindow, Reason: "must be positive"}
	}
	if d.CleanupInterval <= 0 {
		return &domain.ConfigurationError{Field: "detection.cleanup_interval", Value: d.CleanupInterval, Reason: "must be positive"}
	}

	if err := c.DedupPolicy().validate(); err != nil {
		return err
	}
	if c.Dedup.MaxEntriesPerShard < 1 {
		return &domain.ConfigurationError{Field: "dedup.max_entries_per_shard", Value: c.Dedup.MaxEntriesPerShard, Reason: "must be positive"}
	}

	cm := c.Countermeasure
	policy, err := c.BlockPolicy()
	if err != nil {
		return err
	}
	if err := policy.validate(); err != nil {
		return err
	}
	if cm.SweepInterval <= 0 || cm.SweepInterval > cm.BlockDuration {
		return &domain.ConfigurationError{Field: "countermeasure.sweep_interval", Value: cm.SweepInterval, Reason: "must be positive and not longer than block_duration"}
	}
	if len(cm.Sinks) == 0 {
		return &domain.ConfigurationError{Field: "countermeasure.sinks", Value: cm.Sinks, Reason: "at least one sink is required"}
	}
	for _, s := range cm.Sinks {
		if !knownSinks[strings.ToLower(s)] {
			return &domain.ConfigurationError{Field: "countermeasure.sinks", Value: s, Reason: "unknown sink"}
		}
	}
	if cm.SDNDPID < 0 {
		return &domain.ConfigurationError{Field: "countermeasure.sdn.dpid", Value: cm.SDNDPID, Reason: "must not be negative"}
	}

	p := c.Pipeline
	if p.Lanes < 1 || p.Lanes > 1024 {
		return &domain.ConfigurationError{Field: "pipeline.lanes", Value: p.Lanes, Reason: "must be between 1 and 1024"}
	}
	if p.BufferSize < p.Lanes {
		return &domain.ConfigurationError{Field: "pipeline.buffer_size", Value: p.BufferSize, Reason: "must be at least the lane count"}
	}
	if p.SubmitTimeout <= 0 {
		return &domain.ConfigurationError{Field: "pipeline.submit_timeout", Value: p.SubmitTimeout, Reason: "must be positive"}
	}

	if op := c.Output.OverflowPath; op != "" && (op == p.OverflowPath || op == p.QuarantinePath) {
		return &domain.ConfigurationError{Field: "output.overflow_path", Value: op, Reason: "must differ from the pipeline overflow and quarantine files"}
	}

	if c.Input.Format == "" {
		return &domain.ConfigurationError{Field: "input.format", Value: c.Input.Format, Reason: "must not be empty"}
	}
	if c.Output.NATSEnabled && c.Output.NATSSubjectPrefix == "" {
		return &domain.ConfigurationError{Field: "output.nats.subject_prefix", Value: "", Reason: "must not be empty"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		return &domain.ConfigurationError{Field: "logging.level", Value: c.LogLevel, Reason: "unknown level"}
	}
	return nil
}

func (c *EngineConfig) DedupPolicy() DedupPolicy {
	return DedupPolicy{Cooldown: c.Dedup.Cooldown, EscalationCount: c.Dedup.EscalationCount}
}

func (c *EngineConfig) BlockPolicy() (BlockPolicy, error) {
	sev, err := domain.ParseSeverity(c.Countermeasure.BlockThreshold)
	if err != nil {
		return BlockPolicy{}, &domain.ConfigurationError{
			Field:  "countermeasure.block_threshold",
			Value:  c.Countermeasure.BlockThreshold,
			Reason: err.Error(),
		}
	}
	return BlockPolicy{
		Threshold:       sev,
		Duration:        c.Countermeasure.BlockDuration,
		SinkTimeout:     c.Countermeasure.SinkTimeout,
		MaxSinkFailures: c.Countermeasure.MaxSinkFailures,
	}, nil
}

// LogLevelValue returns the parsed logging level.
func (c *EngineConfig) LogLevelValue() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
