package listener

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"
)

// Conn is the transport surface the coordination server needs: a byte
// stream with deadlines. Plain TCP connections satisfy it directly; the
// websocket listener wraps its connections to match.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// SessionHandler owns a connection for its lifetime, returning when the
// connection is finished or the context is canceled.
type SessionHandler interface {
	HandleConnection(ctx context.Context, conn Conn) error
}

type ConnectionManager struct {
	handler SessionHandler
}

func NewConnectionManager(handler SessionHandler) *ConnectionManager {
	return &ConnectionManager{
		handler: handler,
	}
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn Conn) {
	if err := m.handler.HandleConnection(ctx, conn); err != nil {
		slog.WarnContext(ctx, "player connection", "error", err)
	}
}
