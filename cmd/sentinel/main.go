package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/input"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/app"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/tui"
)

var (
	cfgFile      string
	logFile      string
	replayFile   string
	noTUI        bool
	jsonOut      bool
	fullAnalysis bool
	demoMode     bool
	demoRate     int
	natsInput    bool
	storePath    string
	applySinks   bool

	v *viper.Viper

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Streaming intrusion detection with automatic countermeasures",
	Long: `Sentinel ingests network and application telemetry, detects attacks
with signature and behavioural detectors, deduplicates findings and
drives time-boxed block commands against firewalls or an SDN controller.

Detection Capabilities:
  - Signatures: SQLi, XSS, command injection, directory traversal, recon
  - Aggregates: port scans and SYN floods over sliding windows

Countermeasures:
  - Sinks: log (dry run), iptables, netsh, SDN (Ryu REST), NATS
  - Blocks expire automatically and survive restarts`,
	SilenceUsage: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Start live detection on one or more sources",
	Long: `Start real-time detection. Sources can be combined.

Examples:
  sentinel analyze --log /var/log/nginx/access.log
  sentinel analyze --log ./kern.log --no-tui --lanes 32
  sentinel analyze --demo --demo-rate 5000
  sentinel analyze --nats --no-tui --json
  sentinel analyze --replay capture.log.zst`,
	RunE: runAnalyze,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a capture deterministically and print a summary",
	Long: `Replay runs a recorded capture to completion. Block timing follows the
event timestamps, so the same capture always produces the same alerts.
Compressed captures (.zst, .gz) are supported.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List persisted blocks",
	RunE:  runBlocks,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Sentinel %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noTUI, "no-tui", false, "disable TUI, log to the console")

	f := analyzeCmd.Flags()
	f.StringVarP(&logFile, "log", "l", "", "log file to follow")
	f.StringVar(&replayFile, "replay", "", "capture file to replay before exiting")
	f.BoolVar(&jsonOut, "json", false, "write alerts as JSON lines to stdout")
	f.BoolVar(&fullAnalysis, "full", false, "read the log file from the beginning")
	f.BoolVar(&demoMode, "demo", false, "generate synthetic traffic")
	f.IntVar(&demoRate, "demo-rate", 1000, "demo mode: records per second")
	f.BoolVar(&natsInput, "nats", false, "consume records from NATS (input.nats.subject)")
	f.Int("lanes", 16, "number of pipeline lanes")

	replayCmd.Flags().BoolVar(&jsonOut, "json", false, "write alerts as JSON lines to stdout")
	replayCmd.Flags().BoolVar(&applySinks, "apply", false, "send block commands to the configured sinks instead of logging them")
	blocksCmd.Flags().StringVar(&storePath, "store", "", "block store path (default: countermeasure.store.path)")

	rootCmd.AddCommand(analyzeCmd, replayCmd, blocksCmd, versionCmd)
}

func initConfig() {
	v = app.NewViper(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}
	_ = v.BindPFlag("pipeline.lanes", analyzeCmd.Flags().Lookup("lanes"))
	_ = v.BindPFlag("input.nats.enabled", analyzeCmd.Flags().Lookup("nats"))
}

func setupLogging(level zerolog.Level, console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func zerologLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func loadConfig() (*app.EngineConfig, error) {
	cfg, err := app.LoadEngineConfig(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	useTUI := !noTUI && !jsonOut
	setupLogging(cfg.LogLevelValue(), !useTUI)

	var sources []ports.RecordSource
	var names []string
	if demoMode {
		dc := input.DefaultDemoConfig()
		dc.Rate = demoRate
		dc.BufferSize = cfg.Pipeline.BufferSize
		sources = append(sources, input.NewDemoGenerator(dc))
		names = append(names, "DEMO")
	}
	if replayFile != "" {
		sources = append(sources, input.NewReplaySource(replayFile, cfg.Pipeline.BufferSize))
		names = append(names, filepath.Base(replayFile))
	}
	if logFile != "" {
		tailer := input.NewFileTailer(logFile, cfg.Pipeline.BufferSize)
		if fullAnalysis {
			tailer.SetFromBeginning(true)
			log.Info().Msg("Full analysis mode: reading from beginning")
		}
		sources = append(sources, tailer)
		names = append(names, filepath.Base(logFile))
	}
	if cfg.Input.NATSEnabled {
		names = append(names, "NATS:"+cfg.Input.NATSSubject)
	}
	if len(names) == 0 {
		return fmt.Errorf("input required: use --log, --replay, --demo or --nats")
	}
	sourceName := strings.Join(names, "+")

	var dashboard *tui.App
	opts := runtimeOptions{Sources: sources, JSONStdout: jsonOut}
	if useTUI {
		dashboard = tui.NewApp(nil)
		dashboard.SetInputSource(sourceName)
		opts.Subscribers = append(opts.Subscribers, dashboard)
	}

	rt, err := assemble(cfg, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	log.Info().
		Str("source", sourceName).
		Int("lanes", cfg.Pipeline.Lanes).
		Strs("sinks", cfg.Countermeasure.Sinks).
		Bool("tui", useTUI).
		Msg("Sentinel started")

	stopAPI := startAPI(cfg, rt, "live")
	defer stopAPI()

	reloader := app.NewReloader(app.ReloadOptions{Viper: v, Initial: cfg, Apply: rt.Engine.Apply})
	if v.ConfigFileUsed() != "" {
		reloader.StartWatching()
	}
	defer reloader.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !useTUI {
		log.Info().Msg("Running in console mode")
		return rt.Engine.Run(ctx)
	}

	dashboard.SetEngine(rt.Engine)
	if err := rt.Engine.Start(ctx); err != nil {
		return err
	}

	var tuiErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				tuiErr = fmt.Errorf("TUI panic: %v", r)
			}
		}()
		tuiErr = dashboard.Run()
	}()

	cancel()
	shutdownDone := make(chan struct{})
	go func() {
		rt.Engine.Stop()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(10 * time.Second):
		fmt.Fprintln(os.Stderr, "Shutdown timeout, forcing exit")
	}
	return tuiErr
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevelValue(), true)
	if !applySinks {
		cfg.Countermeasure.Sinks = []string{"log"}
	}

	rt, err := assemble(cfg, runtimeOptions{
		Sources:       []ports.RecordSource{input.NewReplaySource(args[0], cfg.Pipeline.BufferSize)},
		Deterministic: true,
		JSONStdout:    jsonOut,
		InMemoryStore: true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	if err := rt.Engine.RunToCompletion(context.Background()); err != nil {
		return err
	}
	printSummary(cmd, rt, time.Since(start))
	return nil
}

func printSummary(cmd *cobra.Command, rt *runtime, elapsed time.Duration) {
	snap := rt.Engine.Metrics()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replay finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  events:     %d (%d rejected)\n", snap.EventsProcessed, snap.EventsRejected)
	fmt.Fprintf(out, "  findings:   %d (new %d, suppressed %d, escalated %d)\n",
		snap.Findings, snap.Admitted, snap.Suppressed, snap.Escalated)
	fmt.Fprintf(out, "  alerts:     %d\n", snap.TotalAlerts)
	fmt.Fprintf(out, "  blocks:     %d issued, %d active\n", snap.BlocksIssued, snap.ActiveBlocks)
	if snap.SinkFailures > 0 {
		fmt.Fprintf(out, "  sink errors: %d\n", snap.SinkFailures)
	}
	for _, b := range rt.Engine.ActiveBlocks() {
		fmt.Fprintf(out, "    %-40s %-20s until %s\n", b.SourceIP, b.Reason.Signature, b.ExpiresAt.Format(time.RFC3339))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
