package output

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/adapters/bus"
	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

const DefaultSubjectPrefix = "alerts"

// NATSAlerter publishes each alert as JSON on <prefix>.<severity>, e.g.
// alerts.high. Subscribers can pick severities with subject wildcards.
//
// The connection is owned by the caller; Close does not close it.
type NATSAlerter struct {
	pub          bus.Publisher
	prefix       string
	flushTimeout time.Duration
	published    atomic.Int64
}

func NewNATSAlerter(pub bus.Publisher, prefix string) *NATSAlerter {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSAlerter{pub: pub, prefix: strings.TrimSuffix(prefix, "."), flushTimeout: 2 * time.Second}
}

// Subject returns the subject an alert of severity sev is published on.
func (a *NATSAlerter) Subject(sev domain.Severity) string {
	return a.prefix + "." + strings.ToLower(sev.String())
}

func (a *NATSAlerter) Send(ctx context.Context, alert *domain.Alert) error {
	data, err := alert.ToJSON()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(a.Subject(alert.Severity))
	msg.Data = data
	msg.Header.Set("x-alert-id", alert.ID)
	msg.Header.Set("x-source-ip", alert.IPString())
	msg.Header.Set("x-severity", alert.Severity.String())
	msg.Header.Set("x-kind", string(alert.Kind))
	if err := a.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	a.published.Add(1)
	return nil
}

func (a *NATSAlerter) Flush() error {
	return a.pub.FlushTimeout(a.flushTimeout)
}

func (a *NATSAlerter) Close() error {
	return a.Flush()
}

func (a *NATSAlerter) Published() int64 {
	return a.published.Load()
}
