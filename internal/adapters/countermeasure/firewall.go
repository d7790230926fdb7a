// Package countermeasure provides the block sinks the controller drives:
// host firewalls, an SDN controller, a message bus and a dry-run logger.
package countermeasure

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// LogSink only logs the commands it receives. It is the default sink.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Block(ctx context.Context, ip netip.Addr, d time.Duration) error {
	log.Warn().
		Str("sink", s.Name()).
		Str("source_ip", ip.String()).
		Dur("duration", d).
		Msg("Dry run: would block source")
	return nil
}

func (s *LogSink) Unblock(ctx context.Context, ip netip.Addr) error {
	log.Info().
		Str("sink", s.Name()).
		Str("source_ip", ip.String()).
		Msg("Dry run: would unblock source")
	return nil
}

// IPTablesSink inserts and deletes an INPUT DROP rule per source.
type IPTablesSink struct {
	runner Runner
	binary string
}

func NewIPTablesSink(runner Runner) *IPTablesSink {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &IPTablesSink{runner: runner, binary: "iptables"}
}

func (s *IPTablesSink) Name() string { return "iptables" }

func (s *IPTablesSink) binaryFor(ip netip.Addr) string {
	if ip.Is6() && !ip.Is4In6() {
		return "ip6tables"
	}
	return s.binary
}

func (s *IPTablesSink) Block(ctx context.Context, ip netip.Addr, _ time.Duration) error {
	return s.run(ctx, "block", ip, "-I", "INPUT", "-s", ip.Unmap().String(), "-j", "DROP")
}

func (s *IPTablesSink) Unblock(ctx context.Context, ip netip.Addr) error {
	return s.run(ctx, "unblock", ip, "-D", "INPUT", "-s", ip.Unmap().String(), "-j", "DROP")
}

func (s *IPTablesSink) run(ctx context.Context, op string, ip netip.Addr, args ...string) error {
	if _, err := s.runner.Run(ctx, s.binaryFor(ip), args...); err != nil {
		return &domain.SinkUnavailableError{Sink: s.Name(), Op: op, IP: ip, Err: err}
	}
	log.Info().Str("sink", s.Name()).Str("op", op).Str("source_ip", ip.String()).Msg("Firewall rule updated")
	return nil
}

// NetshSink manages one Windows firewall rule per source.
type NetshSink struct {
	runner Runner
}

func NewNetshSink(runner Runner) *NetshSink {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &NetshSink{runner: runner}
}

func (s *NetshSink) Name() string { return "netsh" }

// RuleName is the firewall rule name used for ip.
func RuleName(ip netip.Addr) string {
	return "Block_SDN_Attacker_" + ip.Unmap().String()
}

func (s *NetshSink) Block(ctx context.Context, ip netip.Addr, _ time.Duration) error {
	return s.run(ctx, "block", ip,
		"advfirewall", "firewall", "add", "rule",
		"name="+RuleName(ip), "dir=in", "interface=any", "action=block",
		"remoteip="+ip.Unmap().String())
}

func (s *NetshSink) Unblock(ctx context.Context, ip netip.Addr) error {
	return s.run(ctx, "unblock", ip, "advfirewall", "firewall", "delete", "rule", "name="+RuleName(ip))
}

func (s *NetshSink) run(ctx context.Context, op string, ip netip.Addr, args ...string) error {
	if _, err := s.runner.Run(ctx, "netsh", args...); err != nil {
		return &domain.SinkUnavailableError{Sink: s.Name(), Op: op, IP: ip, Err: err}
	}
	log.Info().Str("sink", s.Name()).Str("op", op).Str("source_ip", ip.String()).Msg("Firewall rule updated")
	return nil
}
