package countermeasure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/bus"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const (
	SubjectBlock   = "countermeasures.block"
	SubjectUnblock = "countermeasures.unblock"
)

// Command is the message published for a remote enforcer.
type Command struct {
	Op         string    `json:"op"`
	SourceIP   string    `json:"source_ip"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// NATSSink publishes block and unblock commands. A publish is only
// acknowledged once the server has flushed it.
type NATSSink struct {
	pub bus.Publisher
	now func() time.Time
}

func NewNATSSink(pub bus.Publisher) *NATSSink {
	return &NATSSink{pub: pub, now: time.Now}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Block(ctx context.Context, ip netip.Addr, d time.Duration) error {
	return s.publish(ctx, SubjectBlock, Command{Op: "block", SourceIP: ip.String(), DurationMS: d.Milliseconds(), IssuedAt: s.now().UTC()}, ip)
}

func (s *NATSSink) Unblock(ctx context.Context, ip netip.Addr) error {
	return s.publish(ctx, SubjectUnblock, Command{Op: "unblock", SourceIP: ip.String(), IssuedAt: s.now().UTC()}, ip)
}

func (s *NATSSink) publish(ctx context.Context, subject string, cmd Command, ip netip.Addr) error {
	fail := func(err error) error {
		return &domain.SinkUnavailableError{Sink: s.Name(), Op: cmd.Op, IP: ip, Err: err}
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fail(err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("x-source-ip", cmd.SourceIP)
	if err := s.pub.PublishMsg(msg); err != nil {
		return fail(fmt.Errorf("publish %s: %w", subject, err))
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := s.pub.FlushTimeout(timeout); err != nil {
		return fail(fmt.Errorf("flush %s: %w", subject, err))
	}

	log.Debug().Str("subject", subject).Str("source_ip", cmd.SourceIP).Msg("Countermeasure command published")
	return nil
}
