package message

import (
	chatsync_errors "chatsync/pkg/errors"
)

// DeliveryState is the lifecycle tag of a message on this device.
type DeliveryState string

const (
	StateSending   DeliveryState = "SENDING"
	StateSent      DeliveryState = "SENT"
	StateDelivered DeliveryState = "DELIVERED"
	StateRead      DeliveryState = "READ"
	StateFailed    DeliveryState = "FAILED"
)

// rank orders the forward path. FAILED sits outside it: only reachable from
// SENDING, and terminal. A failed send is retried as a new optimistic entry,
// never by mutating the failed record.
var rank = map[DeliveryState]int{
	StateSending:   0,
	StateSent:      1,
	StateDelivered: 2,
	StateRead:      3,
}

// CanTransition reports whether from -> to is a legal move. State never
// regresses; READ and FAILED are terminal. SENDING resolves only to SENT or
// FAILED: receipts cannot land on a message the server has not acknowledged.
func CanTransition(from, to DeliveryState) bool {
	if from == to {
		return false
	}
	if from == StateSending {
		return to == StateSent || to == StateFailed
	}
	if to == StateFailed || from == StateFailed {
		return false
	}
	fr, ok := rank[from]
	if !ok {
		return false
	}
	tr, ok := rank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Advance moves the message to the given state, or returns ErrInvalidTransition
// if the move would regress or leave a terminal state. Advancing to the
// current state is a silent no-op so duplicate receipts stay idempotent.
func (m *Message) Advance(to DeliveryState) error {
	if m.State == to {
		return nil
	}
	if !CanTransition(m.State, to) {
		return chatsync_errors.ErrInvalidTransition
	}
	m.State = to
	return nil
}
