package session

import (
	"time"

	"chatsync/internal/domain/message"
)

// Event is the closed set of state transitions. Reduce is the only way State
// changes; feeding the same events in any arrival order that respects
// per-message causality converges on the same set, which is what makes the
// projection deterministic.
type Event interface {
	sessionEvent()
}

// FetchedPage carries one page of history from the pagination controller.
type FetchedPage struct {
	Messages []message.Message
}

// PushedMessage carries a confirmed message from the push channel.
type PushedMessage struct {
	Message message.Message
}

// SendRequested inserts the optimistic placeholder of a local send.
type SendRequested struct {
	Message message.Message
}

// SendConfirmed carries the server's confirmation of a local send.
type SendConfirmed struct {
	Message message.Message
}

// SendFailed marks an optimistic entry failed. The record is retained so the
// user can see and retry it.
type SendFailed struct {
	TempID string
}

// Edited updates content in place and stamps EditedAt.
type Edited struct {
	MessageID string
	Content   string
	At        time.Time
}

// Deleted removes for me or tombstones for everyone.
type Deleted struct {
	MessageID   string
	ForEveryone bool
}

// Reacted adds or removes one reaction triple; duplicates are no-ops.
type Reacted struct {
	Reaction message.Reaction
	Removed  bool
}

// Pinned adds or removes pin membership; both directions are idempotent.
type Pinned struct {
	MessageID string
	Unpinned  bool
}

// ReceiptReceived advances delivery state from an explicit receipt.
type ReceiptReceived struct {
	MessageID string
	State     message.DeliveryState
}

func (FetchedPage) sessionEvent()     {}
func (PushedMessage) sessionEvent()   {}
func (SendRequested) sessionEvent()   {}
func (SendConfirmed) sessionEvent()   {}
func (SendFailed) sessionEvent()      {}
func (Edited) sessionEvent()          {}
func (Deleted) sessionEvent()         {}
func (Reacted) sessionEvent()         {}
func (Pinned) sessionEvent()          {}
func (ReceiptReceived) sessionEvent() {}

// Reduce applies ev to a clone of s and returns it. The outcome is the merge
// path taken for message-bearing events, OutcomeNone otherwise. Reduce never
// fails: events that reference unknown ids leave the state unchanged, per
// the not-found-is-a-no-op policy.
func Reduce(s State, ev Event) (State, MergeOutcome) {
	next := s.clone()
	switch e := ev.(type) {
	case FetchedPage:
		outcome := OutcomeNone
		for _, m := range e.Messages {
			outcome = ingest(&next, m)
		}
		return next, outcome
	case PushedMessage:
		return next, ingest(&next, e.Message)
	case SendConfirmed:
		return next, ingest(&next, e.Message)
	case SendRequested:
		insert(&next, e.Message)
		return next, OutcomeInserted
	case SendFailed:
		if i, ok := next.index[e.TempID]; ok {
			_ = next.messages[i].Advance(message.StateFailed)
		}
		return next, OutcomeNone
	case Edited:
		if i, ok := next.index[e.MessageID]; ok && !next.messages[i].IsDeleted {
			at := e.At
			next.messages[i].Content = e.Content
			next.messages[i].EditedAt = &at
		}
		return next, OutcomeNone
	case Deleted:
		applyDelete(&next, e)
		return next, OutcomeNone
	case Reacted:
		applyReaction(&next, e)
		return next, OutcomeNone
	case Pinned:
		if e.Unpinned {
			next.pins.Unpin(e.MessageID)
		} else {
			next.pins.Pin(e.MessageID)
		}
		return next, OutcomeNone
	case ReceiptReceived:
		if i, ok := next.index[e.MessageID]; ok {
			_ = next.messages[i].Advance(e.State)
		}
		return next, OutcomeNone
	}
	return next, OutcomeNone
}

// ingest merges one confirmed message into the set. The three paths, in
// order: refresh a known id in place, reconcile against a matching
// optimistic entry by clientRandom, insert as new. Exclusion wins over all
// of them so a stale push can never resurrect a delete-for-me.
func ingest(s *State, incoming message.Message) MergeOutcome {
	if s.excluded[incoming.ID] {
		return OutcomeExcluded
	}

	if i, ok := s.index[incoming.ID]; ok {
		refresh(&s.messages[i], incoming)
		return OutcomeRefreshed
	}

	if incoming.ClientRandom != 0 {
		for i, m := range s.messages {
			if !m.IsOptimistic() {
				continue
			}
			if m.ClientRandom != incoming.ClientRandom || m.ConversationID != incoming.ConversationID {
				continue
			}
			// Identity swap in place: same slice slot, so the timeline
			// position survives reconciliation.
			confirmed := incoming
			if confirmed.State == "" || confirmed.State == message.StateSending {
				confirmed.State = message.StateSent
			}
			delete(s.index, m.ID)
			s.messages[i] = confirmed
			s.index[confirmed.ID] = i
			s.pins.Rename(m.ID, confirmed.ID)
			if list, ok := s.reactions[m.ID]; ok {
				delete(s.reactions, m.ID)
				s.reactions[confirmed.ID] = list
			}
			return OutcomeReconciled
		}
	}

	m := incoming
	if m.State == "" || m.State == message.StateSending {
		m.State = message.StateSent
	}
	insert(s, m)
	return OutcomeInserted
}

// refresh overwrites the mutable fields of a known record. Ingesting the
// same payload twice is a no-op beyond the first.
func refresh(existing *message.Message, incoming message.Message) {
	if incoming.State != "" {
		_ = existing.Advance(incoming.State)
	}
	if incoming.EditedAt != nil {
		existing.Content = incoming.Content
		existing.EditedAt = incoming.EditedAt
	}
	if incoming.DeleteForEveryone && !existing.DeleteForEveryone {
		existing.IsDeleted = true
		existing.DeleteForEveryone = true
		existing.Content = message.Tombstone
	}
}

func insert(s *State, m message.Message) {
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
}

func applyDelete(s *State, e Deleted) {
	i, ok := s.index[e.MessageID]
	if !ok {
		return
	}
	if e.ForEveryone {
		s.messages[i].IsDeleted = true
		s.messages[i].DeleteForEveryone = true
		s.messages[i].Content = message.Tombstone
		return
	}
	// Delete for me: drop the record and remember the id so a late push
	// cannot bring it back.
	s.excluded[e.MessageID] = true
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	delete(s.index, e.MessageID)
	for id, j := range s.index {
		if j > i {
			s.index[id] = j - 1
		}
	}
	delete(s.reactions, e.MessageID)
	s.pins.Unpin(e.MessageID)
}

func applyReaction(s *State, e Reacted) {
	id := e.Reaction.MessageID
	if _, ok := s.index[id]; !ok {
		return
	}
	list := s.reactions[id]
	for i, r := range list {
		if r.UserID == e.Reaction.UserID && r.Emoji == e.Reaction.Emoji {
			if e.Removed {
				s.reactions[id] = append(list[:i], list[i+1:]...)
			}
			// Duplicate add: no-op, so replayed push events stay idempotent.
			return
		}
	}
	if !e.Removed {
		s.reactions[id] = append(list, e.Reaction)
	}
}
