package countermeasure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const (
	DefaultSDNURL      = "http://127.0.0.1:8080"
	DefaultSDNPriority = 1000

	flowAddPath    = "/stats/flowentry/add"
	flowDeletePath = "/stats/flowentry/delete_strict"

	ethTypeIPv4 = 0x0800
	ethTypeIPv6 = 0x86dd
)

type SDNConfig struct {
	BaseURL  string
	DPID     int
	Priority int
	Timeout  time.Duration
	Client   *http.Client
}

// FlowEntry is the ofctl_rest body for a drop rule: a match without
// actions.
type FlowEntry struct {
	DPID     int               `json:"dpid"`
	Priority int               `json:"priority"`
	Match    map[string]any    `json:"match"`
	Actions  []json.RawMessage `json:"actions"`
}

// SDNSink installs OpenFlow drop rules through a Ryu ofctl REST API.
type SDNSink struct {
	baseURL  string
	dpid     int
	priority int
	client   *http.Client
}

func NewSDNSink(cfg SDNConfig) *SDNSink {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSDNURL
	}
	if cfg.Priority == 0 {
		cfg.Priority = DefaultSDNPriority
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &SDNSink{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		dpid:     cfg.DPID,
		priority: cfg.Priority,
		client:   cfg.Client,
	}
}

func (s *SDNSink) Name() string { return "sdn" }

// Entry builds the flow entry matching packets from ip.
func (s *SDNSink) Entry(ip netip.Addr) FlowEntry {
	ip = ip.Unmap()
	match := map[string]any{"eth_type": ethTypeIPv4, "ipv4_src": ip.String()}
	if ip.Is6() {
		match = map[string]any{"eth_type": ethTypeIPv6, "ipv6_src": ip.String()}
	}
	return FlowEntry{DPID: s.dpid, Priority: s.priority, Match: match, Actions: []json.RawMessage{}}
}

func (s *SDNSink) Block(ctx context.Context, ip netip.Addr, _ time.Duration) error {
	return s.post(ctx, "block", flowAddPath, ip)
}

func (s *SDNSink) Unblock(ctx context.Context, ip netip.Addr) error {
	return s.post(ctx, "unblock", flowDeletePath, ip)
}

func (s *SDNSink) post(ctx context.Context, op, path string, ip netip.Addr) error {
	fail := func(err error) error {
		return &domain.SinkUnavailableError{Sink: s.Name(), Op: op, IP: ip, Err: err}
	}

	body, err := json.Marshal(s.Entry(ip))
	if err != nil {
		return fail(fmt.Errorf("failed to encode flow entry: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(fmt.Errorf("controller returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	log.Info().
		Str("sink", s.Name()).
		Str("op", op).
		Str("source_ip", ip.String()).
		Int("dpid", s.dpid).
		Msg("Flow entry updated")
	return nil
}
