package pins

import (
	"github.com/google/uuid"
)

// Set holds the pinned message ids of one conversation in pin order.
// Membership is the only state; pinning twice or unpinning an absent id is a
// no-op, never an error.
type Set struct {
	conversationID uuid.UUID
	order          []string
	member         map[string]bool
}

func NewSet(conversationID uuid.UUID) *Set {
	return &Set{
		conversationID: conversationID,
		member:         make(map[string]bool),
	}
}

func (s *Set) ConversationID() uuid.UUID {
	return s.conversationID
}

// Pin adds messageID and reports whether the set changed.
func (s *Set) Pin(messageID string) bool {
	if s.member[messageID] {
		return false
	}
	s.member[messageID] = true
	s.order = append(s.order, messageID)
	return true
}

// Unpin removes messageID and reports whether the set changed.
func (s *Set) Unpin(messageID string) bool {
	if !s.member[messageID] {
		return false
	}
	delete(s.member, messageID)
	for i, id := range s.order {
		if id == messageID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Toggle pins when absent, unpins when present. Returns the new membership.
func (s *Set) Toggle(messageID string) bool {
	if s.member[messageID] {
		s.Unpin(messageID)
		return false
	}
	s.Pin(messageID)
	return true
}

func (s *Set) IsPinned(messageID string) bool {
	return s.member[messageID]
}

// IDs returns the pinned ids in pin order.
func (s *Set) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Len() int {
	return len(s.order)
}

// Clone returns an independent copy, for state snapshots.
func (s *Set) Clone() *Set {
	c := NewSet(s.conversationID)
	c.order = append(c.order, s.order...)
	for id := range s.member {
		c.member[id] = true
	}
	return c
}

// Rename swaps a temp id for its confirmed id after reconciliation, keeping
// the pin position.
func (s *Set) Rename(oldID, newID string) {
	if !s.member[oldID] {
		return
	}
	delete(s.member, oldID)
	s.member[newID] = true
	for i, id := range s.order {
		if id == oldID {
			s.order[i] = newID
			break
		}
	}
}
