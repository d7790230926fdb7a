package ports

import (
	"context"
	"net/netip"
	"time"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// BlockSink issues abstract block and unblock commands to an external
// enforcement point (host firewall, SDN controller, message bus).
//
// Implementations:
//   - LogSink: dry run, records the command in the log only
//   - IPTablesSink / NetshSink: host firewall rules
//   - SDNSink: OpenFlow drop rule through a controller REST API
//   - NATSSink: command published for a remote enforcer
//
// Thread Safety: Implementations MUST be safe for concurrent calls. The
// controller never issues two commands for the same address at once.
type BlockSink interface {
	// Block installs a drop rule for ip.
	//
	// Parameters:
	//   - ctx: Bounded by the controller's sink timeout
	//   - ip: Offending source address
	//   - duration: Requested block lifetime (advisory; the controller
	//     always issues an explicit Unblock)
	//
	// Returns:
	//   - nil when the enforcement point acknowledged the command
	//   - *domain.SinkUnavailableError otherwise
	Block(ctx context.Context, ip netip.Addr, duration time.Duration) error

	// Unblock removes the drop rule for ip.
	Unblock(ctx context.Context, ip netip.Addr) error

	// Name identifies the sink in logs, metrics and health alerts.
	Name() string
}

// BlockStore persists block entries so active blocks survive a restart.
type BlockStore interface {
	Save(entry *domain.BlockEntry) error
	Delete(ip netip.Addr) error
	LoadAll() ([]*domain.BlockEntry, error)
	Close() error
}
