package session

import (
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/pins"

	"github.com/google/uuid"
)

// MergeOutcome reports which reconciliation path an ingested message took.
type MergeOutcome int

const (
	// OutcomeNone means the event carried no message to merge.
	OutcomeNone MergeOutcome = iota
	// OutcomeInserted means a genuinely new message entered the set.
	OutcomeInserted
	// OutcomeReconciled means the message replaced a matching optimistic entry.
	OutcomeReconciled
	// OutcomeRefreshed means the id was already known and mutable fields were
	// overwritten in place.
	OutcomeRefreshed
	// OutcomeExcluded means the id sits in the delete-for-me exclusion set and
	// the message was dropped.
	OutcomeExcluded
)

func (o MergeOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeReconciled:
		return "reconciled"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeExcluded:
		return "excluded"
	}
	return "none"
}

// State is the canonical view of one conversation session: the message set
// in insertion order, reactions, pins, and the delete-for-me exclusion set.
// State is a value: Reduce clones before mutating, so a held snapshot never
// changes under the caller.
type State struct {
	ConversationID uuid.UUID

	messages  []message.Message
	index     map[string]int
	reactions map[string][]message.Reaction
	excluded  map[string]bool
	pins      *pins.Set
}

func NewState(conversationID uuid.UUID) State {
	return State{
		ConversationID: conversationID,
		index:          make(map[string]int),
		reactions:      make(map[string][]message.Reaction),
		excluded:       make(map[string]bool),
		pins:           pins.NewSet(conversationID),
	}
}

func (s State) clone() State {
	c := State{
		ConversationID: s.ConversationID,
		messages:       make([]message.Message, len(s.messages)),
		index:          make(map[string]int, len(s.index)),
		reactions:      make(map[string][]message.Reaction, len(s.reactions)),
		excluded:       make(map[string]bool, len(s.excluded)),
		pins:           s.pins.Clone(),
	}
	copy(c.messages, s.messages)
	for id, i := range s.index {
		c.index[id] = i
	}
	for id, list := range s.reactions {
		c.reactions[id] = append([]message.Reaction(nil), list...)
	}
	for id := range s.excluded {
		c.excluded[id] = true
	}
	return c
}

// Messages returns the set in insertion order.
func (s State) Messages() []message.Message {
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Get looks up a message by id.
func (s State) Get(id string) (message.Message, bool) {
	i, ok := s.index[id]
	if !ok {
		return message.Message{}, false
	}
	return s.messages[i], true
}

// Reactions returns the reaction list of one message.
func (s State) Reactions(id string) []message.Reaction {
	return append([]message.Reaction(nil), s.reactions[id]...)
}

// Pins exposes the pin set read-only.
func (s State) Pins() *pins.Set {
	return s.pins
}

// IsExcluded reports whether id was deleted for me this session.
func (s State) IsExcluded(id string) bool {
	return s.excluded[id]
}

// Len is the number of messages in the set.
func (s State) Len() int {
	return len(s.messages)
}

// OldestSentAt returns the pagination cursor: the SentAt of the oldest
// confirmed message currently loaded. Optimistic entries are skipped; their
// timestamps are local guesses. ok is false while nothing confirmed is
// loaded yet.
func (s State) OldestSentAt() (oldest time.Time, ok bool) {
	for _, m := range s.messages {
		if m.IsOptimistic() {
			continue
		}
		if !ok || m.SentAt.Before(oldest) {
			oldest = m.SentAt
			ok = true
		}
	}
	return oldest, ok
}
