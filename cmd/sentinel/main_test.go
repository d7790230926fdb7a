package main

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/input"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/app"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/ports"
)

func TestBuildDetectors(t *testing.T) {
	cfg := app.DefaultEngineConfig()
	cfg.Detection.Enabled = []string{"port_scan", "sqli"}
	cfg.Detection.PortScanThreshold = 5

	set, err := buildDetectors(cfg)
	require.NoError(t, err)
	require.Len(t, set.Detectors, 2)
	assert.Equal(t, "sqli", set.Detectors[0].ID())
	threshold, _ := set.PortScan.Thresholds()
	assert.Equal(t, 5, threshold)
	assert.Nil(t, set.SYNFlood)

	cfg.Detection.Enabled = []string{"bogus"}
	_, err = buildDetectors(cfg)
	assert.Error(t, err)
}

func TestAssembleReplay(t *testing.T) {
	cfg := app.DefaultEngineConfig()
	cfg.Output.HTTPEnabled = false

	rt, err := assemble(cfg, runtimeOptions{
		Sources:       []ports.RecordSource{input.NewLineSource("test", "garbage")},
		Deterministic: true,
		InMemoryStore: true,
	})
	require.NoError(t, err)
	defer rt.Close()

	require.Len(t, rt.Sinks, 1)
	assert.Equal(t, "log", rt.Sinks[0].Name())
	assert.NotNil(t, rt.Memory)
	assert.Nil(t, rt.nc)

	_, err = assemble(cfg, runtimeOptions{InMemoryStore: true})
	assert.Error(t, err, "no sources")
}

func TestPrintBlocks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []*domain.BlockEntry{
		{
			SourceIP:  netip.MustParseAddr("10.0.0.2"),
			Reason:    domain.FindingRef{Signature: domain.SignatureSYNFlood, Severity: domain.SeverityHigh},
			BlockedAt: now.Add(-time.Minute),
			ExpiresAt: now.Add(9 * time.Minute),
			Active:    true,
			Pending:   domain.PendingBlock,
		},
		{
			SourceIP:  netip.MustParseAddr("10.0.0.1"),
			Reason:    domain.FindingRef{Signature: domain.SignaturePortScan, Severity: domain.SeverityHigh},
			BlockedAt: now.Add(-5 * time.Minute),
			ExpiresAt: now.Add(5 * time.Minute),
			Active:    true,
		},
	}

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, printBlocks(cmd, entries, now))

	out := buf.String()
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "PORT_SCAN")
	assert.Contains(t, out, "pending block")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("10.0.0.1")), bytes.Index(buf.Bytes(), []byte("10.0.0.2")))

	buf.Reset()
	require.NoError(t, printBlocks(cmd, nil, now))
	assert.Contains(t, buf.String(), "No persisted blocks")
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, "debug", zerologLevel("DEBUG").String())
	assert.Equal(t, "info", zerologLevel("nonsense").String())
}
