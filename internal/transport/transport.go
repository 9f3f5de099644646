package transport

import (
	"context"
	"time"

	"chatsync/internal/domain/message"

	"github.com/google/uuid"
)

// SendRequest carries everything the server needs to persist a new message.
// ClientRandom echoes back on the confirmed payload so the session can match
// it against the optimistic placeholder.
type SendRequest struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	SenderID       uuid.UUID         `json:"sender_id"`
	Type           message.Type      `json:"type"`
	Content        string            `json:"content"`
	ClientRandom   int64             `json:"client_random"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Transport is the request/response side of the chat backend. The engine
// never talks to a socket or URL directly; it sees only this interface.
type Transport interface {
	FetchMessages(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]message.Message, error)
	SendMessage(ctx context.Context, req SendRequest) (message.Message, error)
	EditMessage(ctx context.Context, messageID string, conversationID uuid.UUID, newContent string) (message.Message, error)
	DeleteMessage(ctx context.Context, messageID string, conversationID uuid.UUID, forEveryone bool) error
	AddReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error
	RemoveReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error
	GetReactions(ctx context.Context, messageID string) ([]message.Reaction, error)
	PinMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error
	UnpinMessage(ctx context.Context, conversationID uuid.UUID, messageID string) error
	GetPinnedMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
	SendTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error
}

// PushChannel is the realtime side. Run blocks until ctx is cancelled or the
// connection dies; events are delivered on Events in arrival order.
// Unsubscribing is cancelling ctx.
type PushChannel interface {
	Run(ctx context.Context) error
	Events() <-chan PushEvent
}
