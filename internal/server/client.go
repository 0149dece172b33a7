// Package server implements the multiworld coordination layer: connection
// identity, room ready-up, generation kickoff, and reliable item delivery
// between the worlds of a running session.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/pixil98/go-multiworld/internal/listener"
	"github.com/pixil98/go-multiworld/internal/protocol"
)

const writeTimeout = 2 * time.Second

// Client is one identified connection. Frames to it are serialized through
// Send so concurrent handlers and sweeps never interleave partial writes.
type Client struct {
	uid  uint64
	conn listener.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	nickname string
	room     string
	lastSeen time.Time
	session  *PlayerSession
}

func newClient(conn listener.Conn) *Client {
	return &Client{
		conn:     conn,
		lastSeen: time.Now(),
	}
}

func (c *Client) UID() uint64 {
	return c.uid
}

func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", msg.Type(), err)
	}
	return nil
}

// Touch records activity on the connection so the ping sweep does not
// consider it silent.
func (c *Client) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
}

func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Client) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

func (c *Client) SetNickname(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname = name
}

func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) SetRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

func (c *Client) Session() *PlayerSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *PlayerSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}
