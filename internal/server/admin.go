package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/iammegalith/telnet"
	"github.com/pixil98/go-multiworld/internal/messaging"
)

// AdminConsole is a telnet operator console for inspecting the registry and
// injecting items into running multiworlds.
type AdminConsole struct {
	port   uint16
	server *Server
}

func NewAdminConsole(port uint16, server *Server) *AdminConsole {
	return &AdminConsole{
		port:   port,
		server: server,
	}
}

func (a *AdminConsole) Start(ctx context.Context) error {
	// Create a cancelable context for all connections
	connCtx, cancelConns := context.WithCancel(context.Background())

	handler := &adminHandler{
		server:      a.server,
		connCtx:     connCtx,
		cancelConns: cancelConns,
	}

	svr := telnet.NewServer(fmt.Sprintf(":%d", a.port), handler)

	// done signals that Start is returning (either success or failure)
	done := make(chan struct{})
	defer close(done)

	// When parent context is canceled, stop accepting and cancel all connections
	go func() {
		select {
		case <-ctx.Done():
			svr.Stop()
			handler.Stop()
		case <-done:
		}
	}()

	err := svr.ListenAndServe()
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %d is already in use (another server running?)", a.port)
		}
		return fmt.Errorf("serving admin console on port %d: %w", a.port, err)
	}

	return nil
}

type adminHandler struct {
	wg          sync.WaitGroup
	server      *Server
	connCtx     context.Context
	cancelConns context.CancelFunc
}

func (h *adminHandler) HandleTelnet(conn *telnet.Connection) {
	h.wg.Add(1)
	defer h.wg.Done()
	defer conn.Close()

	fmt.Fprintf(conn, "multiworld admin console (help for commands)\r\n")

	scanner := bufio.NewScanner(conn)
	for {
		fmt.Fprintf(conn, "> ")
		if !scanner.Scan() {
			return
		}
		if h.connCtx.Err() != nil {
			return
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		h.runCommand(conn, fields[0], fields[1:])
	}
}

func (h *adminHandler) Stop() {
	h.cancelConns()
	h.wg.Wait()
}

func (h *adminHandler) runCommand(w io.Writer, cmd string, args []string) {
	switch cmd {
	case "help":
		fmt.Fprintf(w, "clients                        list identified connections\r\n")
		fmt.Fprintf(w, "rooms                          list rooms with ready or unsaved players\r\n")
		fmt.Fprintf(w, "sessions                       list active multiworld sessions\r\n")
		fmt.Fprintf(w, "give <mw> <player> <item>      inject an item for a player\r\n")
		fmt.Fprintf(w, "quit                           close the console\r\n")
	case "clients":
		h.listClients(w)
	case "rooms":
		h.listRooms(w)
	case "sessions":
		h.listSessions(w)
	case "give":
		h.give(w, args)
	default:
		fmt.Fprintf(w, "unknown command %q\r\n", cmd)
	}
}

func (h *adminHandler) listClients(w io.Writer) {
	clients := h.server.snapshotClients()
	for _, c := range clients {
		sess := c.Session()
		where := "-"
		if sess != nil {
			where = fmt.Sprintf("%s/%d", sess.MultiworldID, sess.PlayerID)
		}
		fmt.Fprintf(w, "uid=%d nickname=%q room=%q session=%s last_seen=%s\r\n",
			c.UID(), c.Nickname(), c.Room(), where, c.LastSeen().Format("15:04:05"))
	}
	fmt.Fprintf(w, "%d client(s)\r\n", len(clients))
}

func (h *adminHandler) listRooms(w io.Writer) {
	h.server.roomsMu.Lock()
	defer h.server.roomsMu.Unlock()

	for room, roster := range h.server.ready {
		fmt.Fprintf(w, "room %q: %d ready\r\n", room, len(roster))
	}
	for room, unsaved := range h.server.unsavedResults {
		names := make([]string, 0, len(unsaved))
		for nick := range unsaved {
			names = append(names, nick)
		}
		fmt.Fprintf(w, "room %q: unsaved by %s\r\n", room, strings.Join(names, ", "))
	}
}

func (h *adminHandler) listSessions(w io.Writer) {
	sessions := h.server.snapshotSessions()
	for _, gs := range sessions {
		fmt.Fprintf(w, "multiworld %s: %d connected\r\n", gs.ID(), len(gs.ConnectedPlayers()))
	}
	fmt.Fprintf(w, "%d session(s)\r\n", len(sessions))
}

func (h *adminHandler) give(w io.Writer, args []string) {
	if len(args) < 3 {
		fmt.Fprintf(w, "usage: give <mw> <player> <item>\r\n")
		return
	}
	player, err := strconv.Atoi(args[1])
	if err != nil || player < 0 {
		fmt.Fprintf(w, "bad player index %q\r\n", args[1])
		return
	}

	gs := h.server.session(args[0], false)
	if gs == nil {
		fmt.Fprintf(w, "no session %q\r\n", args[0])
		return
	}

	ev := messaging.ItemEvent{
		Item:     args[2],
		From:     "server",
		Location: "console",
	}
	if err := gs.SendItemTo(player, ev); err != nil {
		fmt.Fprintf(w, "sending item: %s\r\n", err)
		return
	}
	fmt.Fprintf(w, "sent %s to player %d in %s\r\n", args[2], player, args[0])
}
