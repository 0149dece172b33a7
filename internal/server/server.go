package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pixil98/go-multiworld/internal/listener"
	"github.com/pixil98/go-multiworld/internal/messaging"
	"github.com/pixil98/go-multiworld/internal/protocol"
	"github.com/pixil98/go-multiworld/internal/rando"
	"github.com/pixil98/go-multiworld/internal/storage"
)

// Server is the coordination registry. It owns connection identity, the
// room ready-up tables, per-multiworld game sessions, and results that have
// been generated but not yet saved by every participant.
type Server struct {
	logic   rando.Logic
	bus     ItemRouter
	results storage.Storer[*rando.Result]

	spoilerDir string
	engineOpts []rando.EngineOpt

	nextUID atomic.Uint64

	clientsMu sync.Mutex
	clients   map[uint64]*Client

	roomsMu        sync.Mutex
	ready          map[string]map[uint64]*rando.Settings
	unsavedResults map[string]map[string]*rando.Result

	sessionsMu sync.Mutex
	sessions   map[string]*GameSession
}

type ServerOpt func(*Server)

func WithSpoilerDir(dir string) ServerOpt {
	return func(s *Server) {
		s.spoilerDir = dir
	}
}

func WithEngineOptions(opts ...rando.EngineOpt) ServerOpt {
	return func(s *Server) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

func NewServer(logic rando.Logic, bus ItemRouter, results storage.Storer[*rando.Result], opts ...ServerOpt) *Server {
	s := &Server{
		logic:          logic,
		bus:            bus,
		results:        results,
		clients:        make(map[uint64]*Client),
		ready:          make(map[string]map[uint64]*rando.Settings),
		unsavedResults: make(map[string]map[string]*rando.Result),
		sessions:       make(map[string]*GameSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleConnection owns one connection for its lifetime. The first frame
// must be a connect handshake; everything after that dispatches on kind.
func (s *Server) HandleConnection(ctx context.Context, conn listener.Conn) error {
	c := newClient(conn)
	// A dying connection gets the same teardown as an explicit disconnect,
	// so the room roster and game session never keep a dead client. Skip it
	// when a dispatch already ran the teardown.
	defer func() {
		if s.client(c.UID()) == c {
			s.disconnectClient(c, "connection lost")
		}
	}()

	// Closing the connection is the only way to interrupt a blocked read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		msg, err := protocol.Decode(conn)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, protocol.ErrUnknownMessage) {
				return fmt.Errorf("uid %d: %w", c.UID(), err)
			}
			return fmt.Errorf("uid %d: reading frame: %w", c.UID(), err)
		}

		c.Touch()

		if c.UID() == 0 {
			connect, ok := msg.(*protocol.Connect)
			if !ok {
				return fmt.Errorf("first frame was %s, want connect", msg.Type())
			}
			if !s.handleConnect(ctx, c, connect) {
				return nil
			}
			continue
		}

		s.dispatch(ctx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *Client, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Connect:
		// Already identified; a second handshake is a client bug.
		slog.WarnContext(ctx, "duplicate connect", "uid", c.UID())
	case *protocol.Disconnect:
		s.disconnectClient(c, "client request")
	case *protocol.Join:
		s.handleJoin(ctx, c, m)
	case *protocol.Leave:
		s.handleLeave(c)
	case *protocol.Ready:
		s.handleReady(ctx, c, m)
	case *protocol.Unready:
		s.handleUnready(c)
	case *protocol.Start:
		s.handleStart(ctx, c)
	case *protocol.Save:
		s.handleSave(ctx, c)
	case *protocol.ItemSend:
		s.handleItemSend(ctx, c, m)
	case *protocol.ItemReceiveConfirm:
		s.handleItemReceiveConfirm(c, m)
	case *protocol.Notify:
		slog.InfoContext(ctx, "client notify", "uid", c.UID(), "text", m.Text)
	case *protocol.Ping:
		// Touch above is all a ping needs.
	default:
		slog.WarnContext(ctx, "unexpected message from client",
			"uid", c.UID(), "type", msg.Type().String())
	}
}

// handleConnect assigns an identity. A client claiming an identity it was
// never assigned is rejected and cut off. Returns false when the
// connection should close.
func (s *Server) handleConnect(ctx context.Context, c *Client, msg *protocol.Connect) bool {
	if msg.SenderUID != 0 {
		slog.WarnContext(ctx, "rejecting connect with preset uid", "uid", msg.SenderUID)
		return false
	}

	c.uid = s.nextUID.Add(1)

	s.clientsMu.Lock()
	s.clients[c.uid] = c
	s.clientsMu.Unlock()

	if err := c.Send(&protocol.Connect{SenderUID: c.uid}); err != nil {
		slog.WarnContext(ctx, "sending connect reply", "uid", c.uid, "error", err)
		return false
	}

	slog.InfoContext(ctx, "client connected", "uid", c.uid, "addr", c.conn.RemoteAddr())
	return true
}

func (s *Server) handleJoin(ctx context.Context, c *Client, msg *protocol.Join) {
	if msg.MultiworldID == "" || msg.PlayerID < 0 {
		s.notify(c, "join rejected: missing multiworld id or player")
		return
	}

	gs := s.session(msg.MultiworldID, true)

	c.SetNickname(msg.Nickname)
	c.setSession(newPlayerSession(msg.MultiworldID, msg.PlayerID))

	if err := gs.AddPlayer(msg.PlayerID, c); err != nil {
		c.setSession(nil)
		slog.WarnContext(ctx, "joining session",
			"uid", c.UID(), "multiworld", msg.MultiworldID, "error", err)
		s.notify(c, "join failed")
		return
	}

	slog.InfoContext(ctx, "player joined",
		"uid", c.UID(), "multiworld", msg.MultiworldID, "player", msg.PlayerID, "nickname", msg.Nickname)

	if err := c.Send(&protocol.JoinConfirm{}); err != nil {
		slog.WarnContext(ctx, "sending join confirm", "uid", c.UID(), "error", err)
	}
}

func (s *Server) handleLeave(c *Client) {
	sess := c.Session()
	if sess == nil {
		return
	}
	if gs := s.session(sess.MultiworldID, false); gs != nil {
		gs.RemovePlayer(sess.PlayerID, c)
	}
	c.setSession(nil)
}

func (s *Server) handleReady(ctx context.Context, c *Client, msg *protocol.Ready) {
	if msg.Settings == nil {
		s.deny(c, "ready rejected: no settings")
		return
	}

	s.roomsMu.Lock()
	if unsaved, ok := s.unsavedResults[msg.Room]; ok {
		if _, part := unsaved[msg.Nickname]; !part {
			s.roomsMu.Unlock()
			s.deny(c, "room has an unsaved game in progress")
			return
		}
	}
	roster, ok := s.ready[msg.Room]
	if !ok {
		roster = make(map[uint64]*rando.Settings)
		s.ready[msg.Room] = roster
	}
	roster[c.UID()] = msg.Settings
	s.roomsMu.Unlock()

	c.SetNickname(msg.Nickname)
	c.SetRoom(msg.Room)

	slog.InfoContext(ctx, "player ready",
		"uid", c.UID(), "room", msg.Room, "nickname", msg.Nickname)

	s.broadcastReady(msg.Room)
}

func (s *Server) handleUnready(c *Client) {
	room := c.Room()
	if room == "" {
		return
	}

	s.roomsMu.Lock()
	if roster, ok := s.ready[room]; ok {
		delete(roster, c.UID())
		if len(roster) == 0 {
			delete(s.ready, room)
		}
	}
	s.roomsMu.Unlock()

	c.SetRoom("")
	s.broadcastReady(room)
}

// handleStart consumes a room's roster and runs generation. The initiator's
// settings come first so their seed drives the run. If the initiator
// already holds an unsaved result for the room, it is resent instead of
// generating again.
func (s *Server) handleStart(ctx context.Context, c *Client) {
	room := c.Room()
	nick := c.Nickname()

	s.roomsMu.Lock()
	if unsaved, ok := s.unsavedResults[room]; ok {
		if res, ok := unsaved[nick]; ok {
			s.roomsMu.Unlock()
			if err := c.Send(&protocol.Result{Result: res}); err != nil {
				slog.WarnContext(ctx, "resending unsaved result", "uid", c.UID(), "error", err)
			}
			return
		}
	}

	roster, ok := s.ready[room]
	if !ok || roster[c.UID()] == nil {
		s.roomsMu.Unlock()
		s.notify(c, "cannot start: not readied in a room")
		return
	}

	uids := make([]uint64, 0, len(roster))
	uids = append(uids, c.UID())
	for uid := range roster {
		if uid != c.UID() {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids[1:], func(i, j int) bool { return uids[i+1] < uids[j+1] })

	settings := make([]*rando.Settings, len(uids))
	for i, uid := range uids {
		settings[i] = roster[uid]
	}
	s.roomsMu.Unlock()

	clients := make([]*Client, len(uids))
	nicknames := make([]string, len(uids))
	for i, uid := range uids {
		cl := s.client(uid)
		if cl == nil {
			s.notify(c, fmt.Sprintf("cannot start: player %d disconnected", i))
			return
		}
		clients[i] = cl
		nicknames[i] = cl.Nickname()
	}

	slog.InfoContext(ctx, "starting generation",
		"room", room, "players", len(uids), "initiator", nick)

	engine, err := rando.NewEngine(s.logic, settings, s.engineOpts...)
	if err != nil {
		slog.ErrorContext(ctx, "building engine", "room", room, "error", err)
		s.notifyAll(clients, "generation failed: "+err.Error())
		return
	}

	results, err := engine.Randomize(nicknames)
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "room", room, "error", err)
		s.notifyAll(clients, "generation failed: "+err.Error())
		return
	}

	// The spoiler covers every world, so it is rendered from the global
	// tables once and handed only to players who asked for it.
	spoiler := ""
	for _, set := range settings {
		if set.CreateSpoilerLog {
			spoiler = rando.ItemSpoiler(results[0])
			break
		}
	}

	projected := make([]*rando.Result, len(results))
	for i, r := range results {
		projected[i] = r.Project()
		if r.Settings.CreateSpoilerLog {
			projected[i].ItemsSpoiler = spoiler
		}
	}

	s.roomsMu.Lock()
	delete(s.ready, room)
	unsaved := make(map[string]*rando.Result, len(projected))
	for i, r := range projected {
		unsaved[clients[i].Nickname()] = r
	}
	s.unsavedResults[room] = unsaved
	s.roomsMu.Unlock()

	if settings[0].CreateSpoilerLog && s.spoilerDir != "" {
		if path, err := rando.WriteSpoiler(s.spoilerDir, results[0], spoiler); err != nil {
			slog.WarnContext(ctx, "writing spoiler", "room", room, "error", err)
		} else {
			slog.InfoContext(ctx, "spoiler written", "room", room, "path", path)
		}
	}

	for i, r := range projected {
		id := fmt.Sprintf("%s-p%d", r.MultiworldID, r.PlayerID)
		if err := s.results.Save(id, r); err != nil {
			slog.WarnContext(ctx, "persisting result", "id", id, "error", err)
		}
		if err := clients[i].Send(&protocol.Result{Result: r}); err != nil {
			slog.WarnContext(ctx, "sending result", "uid", clients[i].UID(), "error", err)
		}
	}

	slog.InfoContext(ctx, "generation complete",
		"room", room, "multiworld", results[0].MultiworldID, "seed", results[0].DerivedSeed)
}

// handleSave releases the sender's claim on the room's unsaved result. The
// room opens up for new games once every participant has saved.
func (s *Server) handleSave(ctx context.Context, c *Client) {
	room := c.Room()
	nick := c.Nickname()

	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	unsaved, ok := s.unsavedResults[room]
	if !ok {
		return
	}
	delete(unsaved, nick)
	slog.InfoContext(ctx, "result saved",
		"room", room, "nickname", nick, "remaining", len(unsaved))
	if len(unsaved) == 0 {
		delete(s.unsavedResults, room)
	}
}

func (s *Server) handleItemSend(ctx context.Context, c *Client, msg *protocol.ItemSend) {
	sess := c.Session()
	if sess == nil {
		s.notify(c, "item send rejected: not in a multiworld")
		return
	}

	if err := c.Send(&protocol.ItemSendConfirm{
		Location: msg.Location,
		Item:     msg.Item,
		To:       msg.To,
	}); err != nil {
		slog.WarnContext(ctx, "sending item confirm", "uid", c.UID(), "error", err)
	}

	gs := s.session(sess.MultiworldID, false)
	if gs == nil {
		slog.WarnContext(ctx, "item send for unknown session",
			"uid", c.UID(), "multiworld", sess.MultiworldID)
		return
	}

	ev := messaging.ItemEvent{
		Item:     msg.Item,
		From:     c.Nickname(),
		Location: msg.Location,
	}
	if err := gs.SendItemTo(msg.To, ev); err != nil {
		slog.WarnContext(ctx, "routing item",
			"multiworld", sess.MultiworldID, "to", msg.To, "item", msg.Item, "error", err)
		return
	}

	slog.InfoContext(ctx, "item routed",
		"multiworld", sess.MultiworldID, "from", sess.PlayerID, "to", msg.To, "item", msg.Item)
}

func (s *Server) handleItemReceiveConfirm(c *Client, msg *protocol.ItemReceiveConfirm) {
	sess := c.Session()
	if sess == nil {
		return
	}
	sess.Confirm(msg.Item, msg.From)
}

// disconnectClient tears a client down from the server side: out of the
// ready tables, out of its session, and off the wire.
func (s *Server) disconnectClient(c *Client, reason string) {
	if c.UID() != 0 {
		slog.Info("disconnecting client", "uid", c.UID(), "reason", reason)
	}

	room := c.Room()
	if room != "" {
		s.roomsMu.Lock()
		if roster, ok := s.ready[room]; ok {
			delete(roster, c.UID())
			if len(roster) == 0 {
				delete(s.ready, room)
			}
		}
		s.roomsMu.Unlock()
		c.SetRoom("")
		s.broadcastReady(room)
	}

	s.handleLeave(c)

	// Best effort; the peer may already be gone.
	c.Send(&protocol.Disconnect{})
	c.conn.Close()

	s.dropClient(c)
}

func (s *Server) dropClient(c *Client) {
	if c.UID() == 0 {
		return
	}
	s.clientsMu.Lock()
	if s.clients[c.UID()] == c {
		delete(s.clients, c.UID())
	}
	s.clientsMu.Unlock()
}

func (s *Server) client(uid uint64) *Client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return s.clients[uid]
}

func (s *Server) snapshotClients() []*Client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) session(mwID string, create bool) *GameSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	gs, ok := s.sessions[mwID]
	if !ok && create {
		gs = NewGameSession(mwID, s.bus)
		s.sessions[mwID] = gs
	}
	return gs
}

func (s *Server) snapshotSessions() []*GameSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	out := make([]*GameSession, 0, len(s.sessions))
	for _, gs := range s.sessions {
		out = append(out, gs)
	}
	return out
}

// broadcastReady tells every readied member of a room who is in and how
// many, after any roster change.
func (s *Server) broadcastReady(room string) {
	s.roomsMu.Lock()
	roster := s.ready[room]
	uids := make([]uint64, 0, len(roster))
	for uid := range roster {
		uids = append(uids, uid)
	}
	s.roomsMu.Unlock()

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	members := make([]*Client, 0, len(uids))
	names := make([]string, 0, len(uids))
	for _, uid := range uids {
		if cl := s.client(uid); cl != nil {
			members = append(members, cl)
			names = append(names, cl.Nickname())
		}
	}

	msg := &protocol.NumReady{
		Ready: len(members),
		Names: strings.Join(names, ", "),
	}
	for _, cl := range members {
		if err := cl.Send(msg); err != nil {
			slog.Warn("broadcasting ready count", "uid", cl.UID(), "error", err)
		}
	}
}

func (s *Server) notify(c *Client, text string) {
	if err := c.Send(&protocol.Notify{Text: text}); err != nil {
		slog.Warn("sending notify", "uid", c.UID(), "error", err)
	}
}

func (s *Server) notifyAll(clients []*Client, text string) {
	for _, c := range clients {
		s.notify(c, text)
	}
}

// deny answers a rejected ready-up. The negative count marks it as a
// denial; the names field carries the reason.
func (s *Server) deny(c *Client, reason string) {
	if err := c.Send(&protocol.NumReady{Ready: -1, Names: reason}); err != nil {
		slog.Warn("sending ready denial", "uid", c.UID(), "error", err)
	}
}
