package server

import (
	"sync"
	"time"

	"github.com/pixil98/go-multiworld/internal/protocol"
)

// PlayerSession tracks one player's membership in a multiworld and the item
// deliveries still awaiting confirmation from that player's game.
type PlayerSession struct {
	MultiworldID string
	PlayerID     int

	mu      sync.Mutex
	pending []resendEntry
}

type resendEntry struct {
	msg      *protocol.ItemReceive
	lastSent time.Time
}

func newPlayerSession(mwID string, playerID int) *PlayerSession {
	return &PlayerSession{
		MultiworldID: mwID,
		PlayerID:     playerID,
	}
}

// QueueConfirmable records a delivery that must be retransmitted until the
// player's game confirms it.
func (s *PlayerSession) QueueConfirmable(msg *protocol.ItemReceive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, resendEntry{msg: msg, lastSent: time.Now()})
}

// Confirm drops every pending delivery matching the item and sender. A
// confirmation for an item no longer pending is a no-op, so duplicate
// confirmations are harmless.
func (s *PlayerSession) Confirm(item, from string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pending[:0]
	removed := 0
	for _, e := range s.pending {
		if e.msg.Item == item && e.msg.From == from {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.pending = kept
	return removed
}

// Due returns the deliveries whose last transmission is older than the
// resend interval, marking them as sent now.
func (s *PlayerSession) Due(interval time.Duration) []*protocol.ItemReceive {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []*protocol.ItemReceive
	for i := range s.pending {
		if now.Sub(s.pending[i].lastSent) >= interval {
			s.pending[i].lastSent = now
			due = append(due, s.pending[i].msg)
		}
	}
	return due
}

func (s *PlayerSession) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
