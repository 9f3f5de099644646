package presence

import (
	"time"

	"github.com/google/uuid"
)

// Typing indicator expiry. Matches the server-side expiry so a client that
// never sends typing.stopped still ages out.
const typingTTL = 10 * time.Second

// Tracker maintains the ephemeral set of users currently typing in one
// conversation. Every typing.started refreshes the user's deadline; the user
// drops out on typing.stopped or when the deadline passes. The clock is
// injected so tests can drive time.
type Tracker struct {
	now      func() time.Time
	deadline map[uuid.UUID]time.Time
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now:      now,
		deadline: make(map[uuid.UUID]time.Time),
	}
}

// Set records a typing state change for userID.
func (t *Tracker) Set(userID uuid.UUID, typing bool) {
	if !typing {
		delete(t.deadline, userID)
		return
	}
	t.deadline[userID] = t.now().Add(typingTTL)
}

// Typing returns the users whose indicator has not expired, pruning the rest.
func (t *Tracker) Typing() []uuid.UUID {
	now := t.now()
	var out []uuid.UUID
	for id, dl := range t.deadline {
		if now.After(dl) {
			delete(t.deadline, id)
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsTyping reports whether userID has a live indicator.
func (t *Tracker) IsTyping(userID uuid.UUID) bool {
	dl, ok := t.deadline[userID]
	if !ok {
		return false
	}
	if t.now().After(dl) {
		delete(t.deadline, userID)
		return false
	}
	return true
}
