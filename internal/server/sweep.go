package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixil98/go-multiworld/internal/protocol"
)

// silenceFactor is how many ping intervals a connection may stay silent
// before it is presumed dead.
const silenceFactor = 3.5

// PingSweep pings every identified client and disconnects the ones that
// have been silent for too long.
type PingSweep struct {
	server   *Server
	interval time.Duration
}

func NewPingSweep(server *Server, interval time.Duration) *PingSweep {
	return &PingSweep{
		server:   server,
		interval: interval,
	}
}

func (p *PingSweep) Name() string {
	return "ping"
}

func (p *PingSweep) Sweep(ctx context.Context) error {
	cutoff := time.Duration(float64(p.interval) * silenceFactor)
	now := time.Now()

	for _, c := range p.server.snapshotClients() {
		if now.Sub(c.LastSeen()) > cutoff {
			p.server.disconnectClient(c, "ping timeout")
			continue
		}
		if err := c.Send(&protocol.Ping{}); err != nil {
			slog.WarnContext(ctx, "sending ping", "uid", c.UID(), "error", err)
		}
	}
	return nil
}

// ResendSweep retransmits item deliveries that have gone unconfirmed for
// longer than the resend interval.
type ResendSweep struct {
	server   *Server
	interval time.Duration
}

func NewResendSweep(server *Server, interval time.Duration) *ResendSweep {
	return &ResendSweep{
		server:   server,
		interval: interval,
	}
}

func (r *ResendSweep) Name() string {
	return "resend"
}

func (r *ResendSweep) Sweep(ctx context.Context) error {
	for _, c := range r.server.snapshotClients() {
		sess := c.Session()
		if sess == nil {
			continue
		}
		for _, msg := range sess.Due(r.interval) {
			if err := c.Send(msg); err != nil {
				slog.WarnContext(ctx, "resending item",
					"uid", c.UID(), "item", msg.Item, "error", err)
				break
			}
		}
	}
	return nil
}
