package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
)

// TCPListener accepts raw TCP connections carrying the framed wire
// protocol and hands each one to the connection manager.
type TCPListener struct {
	port uint16
	cm   *ConnectionManager
}

func NewTCPListener(port uint16, cm *ConnectionManager) *TCPListener {
	return &TCPListener{
		port: port,
		cm:   cm,
	}
}

func (l *TCPListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use (another server running?)", l.port)
		}
		return fmt.Errorf("listening on port %d: %w", l.port, err)
	}

	// Create a cancelable context for all connections
	connCtx, cancelConns := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	// done signals that Start is returning (either success or failure)
	done := make(chan struct{})
	defer close(done)

	// When parent context is canceled, stop accepting and cancel all connections
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
			cancelConns()
		case <-done:
			cancelConns()
		}
	}()

	slog.InfoContext(ctx, "tcp listener started", "port", l.port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown requested
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
					slog.WarnContext(connCtx, "closing connection", "error", err)
				}
			}()
			l.cm.AcceptConnection(connCtx, conn)
		}()
	}
}
