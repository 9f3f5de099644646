package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/events"

	"github.com/google/uuid"
)

// PushEvent is the closed set of realtime events the engine consumes.
type PushEvent interface {
	pushEvent()
}

// NewMessageEvent carries a confirmed message pushed by the server, either a
// participant's message or the echo of a local send.
type NewMessageEvent struct {
	Message message.Message
}

// MessageUpdatedEvent carries an upstream edit or delete-for-everyone.
type MessageUpdatedEvent struct {
	Message message.Message
}

// TypingEvent reports a participant starting or stopping typing.
type TypingEvent struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Typing         bool
}

// ReceiptEvent reports a delivery or read acknowledgement for one message.
type ReceiptEvent struct {
	MessageID string
	UserID    uuid.UUID
	State     message.DeliveryState
	At        time.Time
}

// ReactionEvent reports a reaction added or removed by any participant.
type ReactionEvent struct {
	Reaction message.Reaction
	Removed  bool
}

// PinEvent reports a message pinned or unpinned by any participant.
type PinEvent struct {
	ConversationID uuid.UUID
	MessageID      string
	Unpinned       bool
}

func (NewMessageEvent) pushEvent()     {}
func (MessageUpdatedEvent) pushEvent() {}
func (TypingEvent) pushEvent()         {}
func (ReceiptEvent) pushEvent()        {}
func (ReactionEvent) pushEvent()       {}
func (PinEvent) pushEvent()            {}

type typingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Typing         bool      `json:"typing"`
}

type receiptPayload struct {
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	At        time.Time `json:"at"`
}

type pinPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
}

// DecodeEnvelope turns a wire envelope into a typed PushEvent. Unknown event
// types return (nil, nil); both the websocket and redis channels just skip
// them, so new server-side events never break old clients.
func DecodeEnvelope(env events.Envelope) (PushEvent, error) {
	switch env.EventType {
	case events.EventTypeMessageCreated:
		var m message.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return NewMessageEvent{Message: m}, nil
	case events.EventTypeMessageUpdated, events.EventTypeMessageDeleted:
		var m message.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return MessageUpdatedEvent{Message: m}, nil
	case events.EventTypeTypingStarted, events.EventTypeTypingStopped:
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return TypingEvent{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			Typing:         env.EventType == events.EventTypeTypingStarted,
		}, nil
	case events.EventTypeReceiptDelivered, events.EventTypeReceiptRead:
		var p receiptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		state := message.StateDelivered
		if env.EventType == events.EventTypeReceiptRead {
			state = message.StateRead
		}
		return ReceiptEvent{MessageID: p.MessageID, UserID: p.UserID, State: state, At: p.At}, nil
	case events.EventTypeReactionAdded, events.EventTypeReactionRemoved:
		var r message.Reaction
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return ReactionEvent{Reaction: r, Removed: env.EventType == events.EventTypeReactionRemoved}, nil
	case events.EventTypeMessagePinned, events.EventTypeMessageUnpinned:
		var p pinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.EventType, err)
		}
		return PinEvent{
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
			Unpinned:       env.EventType == events.EventTypeMessageUnpinned,
		}, nil
	}
	return nil, nil
}
