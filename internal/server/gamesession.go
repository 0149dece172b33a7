package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pixil98/go-multiworld/internal/messaging"
	"github.com/pixil98/go-multiworld/internal/protocol"
)

// ItemRouter carries item events between player slots. The NATS-backed item
// bus is the production implementation.
type ItemRouter interface {
	PublishItem(mwID string, player int, ev messaging.ItemEvent) error
	SubscribeItems(mwID string, player int, handler func(messaging.ItemEvent)) (func(), error)
}

// GameSession is the live state of one multiworld instance: which player
// slots currently have a connection, and the item events buffered for slots
// that are offline. Routing between slots goes over the item bus, so every
// slot keeps a subscription for as long as the session exists.
type GameSession struct {
	mwID string
	bus  ItemRouter

	mu      sync.Mutex
	players map[int]*Client
	offline map[int][]messaging.ItemEvent
	unsubs  map[int]func()
}

func NewGameSession(mwID string, bus ItemRouter) *GameSession {
	return &GameSession{
		mwID:    mwID,
		bus:     bus,
		players: make(map[int]*Client),
		offline: make(map[int][]messaging.ItemEvent),
		unsubs:  make(map[int]func()),
	}
}

func (gs *GameSession) ID() string {
	return gs.mwID
}

// AddPlayer binds a connection to a player slot and flushes anything that
// was buffered for the slot while it was offline.
func (gs *GameSession) AddPlayer(playerID int, c *Client) error {
	gs.mu.Lock()

	if err := gs.ensureRouteLocked(playerID); err != nil {
		gs.mu.Unlock()
		return err
	}

	if prev, ok := gs.players[playerID]; ok && prev != c {
		slog.Warn("player slot taken over",
			"multiworld", gs.mwID, "player", playerID, "prev_uid", prev.UID())
	}
	gs.players[playerID] = c

	buffered := gs.offline[playerID]
	delete(gs.offline, playerID)
	gs.mu.Unlock()

	session := c.Session()
	for _, ev := range buffered {
		gs.sendToClient(c, session, ev)
	}
	return nil
}

// RemovePlayer detaches the connection from its slot. Buffered and pending
// items survive for the next connection claiming the slot.
func (gs *GameSession) RemovePlayer(playerID int, c *Client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.players[playerID] == c {
		delete(gs.players, playerID)
	}
}

// SendItemTo publishes an item event for a destination slot. Delivery to
// the owning connection, or the offline buffer, happens in the bus handler.
func (gs *GameSession) SendItemTo(to int, ev messaging.ItemEvent) error {
	gs.mu.Lock()
	err := gs.ensureRouteLocked(to)
	gs.mu.Unlock()
	if err != nil {
		return err
	}
	return gs.bus.PublishItem(gs.mwID, to, ev)
}

// Empty reports whether no connection currently occupies any slot.
func (gs *GameSession) Empty() bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.players) == 0
}

func (gs *GameSession) ConnectedPlayers() []int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	ids := make([]int, 0, len(gs.players))
	for id := range gs.players {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down all bus subscriptions.
func (gs *GameSession) Close() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	for _, unsub := range gs.unsubs {
		unsub()
	}
	gs.unsubs = make(map[int]func())
}

func (gs *GameSession) ensureRouteLocked(playerID int) error {
	if _, ok := gs.unsubs[playerID]; ok {
		return nil
	}
	unsub, err := gs.bus.SubscribeItems(gs.mwID, playerID, func(ev messaging.ItemEvent) {
		gs.deliver(playerID, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribing player %d: %w", playerID, err)
	}
	gs.unsubs[playerID] = unsub
	return nil
}

func (gs *GameSession) deliver(playerID int, ev messaging.ItemEvent) {
	gs.mu.Lock()
	c, ok := gs.players[playerID]
	if !ok {
		gs.offline[playerID] = append(gs.offline[playerID], ev)
		gs.mu.Unlock()
		return
	}
	gs.mu.Unlock()

	gs.sendToClient(c, c.Session(), ev)
}

func (gs *GameSession) sendToClient(c *Client, session *PlayerSession, ev messaging.ItemEvent) {
	msg := &protocol.ItemReceive{Item: ev.Item, From: ev.From}
	if session != nil {
		session.QueueConfirmable(msg)
	}
	if err := c.Send(msg); err != nil {
		// The resend sweep retries; a dead connection is the ping
		// sweep's problem.
		slog.Warn("delivering item",
			"multiworld", gs.mwID, "uid", c.UID(), "item", ev.Item, "error", err)
	}
}
