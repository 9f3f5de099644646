package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type discriminates message payloads.
type Type string

const (
	TypeText   Type = "TEXT"
	TypeMedia  Type = "MEDIA"
	TypeSystem Type = "SYSTEM"
)

// TempIDPrefix marks locally-generated ids of optimistic sends. A temp id
// lives only until reconciliation swaps it for the server-assigned one.
const TempIDPrefix = "temp-"

// Tombstone replaces the content of a message deleted for everyone.
const Tombstone = "[Message supprimé]"

// Message is the canonical per-message record. Once confirmed by the server
// it is immutable except for the fields the session mutates in place:
// delivery state, content on edit, deletion flags.
type Message struct {
	ID                string            `json:"id"`
	ConversationID    uuid.UUID         `json:"conversation_id"`
	SenderID          uuid.UUID         `json:"sender_id"`
	Type              Type              `json:"type"`
	Content           string            `json:"content"`
	ClientRandom      int64             `json:"client_random,omitempty"`
	SentAt            time.Time         `json:"sent_at"`
	EditedAt          *time.Time        `json:"edited_at,omitempty"`
	IsDeleted         bool              `json:"is_deleted"`
	DeleteForEveryone bool              `json:"delete_for_everyone"`
	ReplyToID         string            `json:"reply_to_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Attachments       []Attachment      `json:"attachments,omitempty"`
	State             DeliveryState     `json:"state"`
}

// IsOptimistic reports whether the record still carries a local temp id.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewOptimistic builds the provisional record inserted before the server
// confirms a send. ClientRandom is the correlation key reconciliation uses
// to match the eventual confirmed payload.
func NewOptimistic(conversationID, senderID uuid.UUID, content string, msgType Type, clientRandom int64, replyToID string, metadata map[string]string) Message {
	now := time.Now()
	return Message{
		ID:             fmt.Sprintf("%s%d", TempIDPrefix, now.UnixNano()),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        content,
		ClientRandom:   clientRandom,
		SentAt:         now,
		ReplyToID:      replyToID,
		Metadata:       metadata,
		State:          StateSending,
	}
}

// Reaction represents one user's emoji on one message. A user holds at most
// one reaction per emoji value per message; re-adding an identical triple
// toggles it off.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment belongs to exactly one message and never outlives it.
type Attachment struct {
	ID           uuid.UUID `json:"id"`
	URL          string    `json:"url"`
	MimeType     string    `json:"mime_type"`
	Filename     string    `json:"filename,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
}

// Receipt is a delivery/read acknowledgement pushed by the server, keyed by
// message id. Receipts are the only way state reaches delivered or read.
type Receipt struct {
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Status    string    `json:"status"` // DELIVERED or READ
	At        time.Time `json:"at"`
}
