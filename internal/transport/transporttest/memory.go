// Package transporttest provides functional fakes of the chat backend: an
// in-memory Transport for engine tests and a full in-process HTTP+WebSocket
// server for transport-level tests and the demo CLI.
package transporttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/transport"

	"github.com/google/uuid"
)

// Memory is an in-memory Transport. All mutators run against an internal
// store; failure injection flips every call of one kind into an error.
type Memory struct {
	mu        sync.Mutex
	messages  []message.Message
	reactions map[string][]message.Reaction
	pinned    map[uuid.UUID][]string

	FailSends   bool
	FailFetches bool

	// SentRequests records every SendMessage call for assertions.
	SentRequests []transport.SendRequest
}

var errInjected = errors.New("injected transport failure")

func NewMemory() *Memory {
	return &Memory{
		reactions: make(map[string][]message.Reaction),
		pinned:    make(map[uuid.UUID][]string),
	}
}

// Seed preloads server-side history.
func (m *Memory) Seed(msgs ...message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

func (m *Memory) FetchMessages(_ context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFetches {
		return nil, errInjected
	}
	var page []message.Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if before != nil && !msg.SentAt.Before(*before) {
			continue
		}
		page = append(page, msg)
	}
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].SentAt.After(page[j].SentAt)
	})
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (m *Memory) SendMessage(_ context.Context, req transport.SendRequest) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentRequests = append(m.SentRequests, req)
	if m.FailSends {
		return message.Message{}, errInjected
	}
	msg := message.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Type:           req.Type,
		Content:        req.Content,
		ClientRandom:   req.ClientRandom,
		SentAt:         time.Now(),
		ReplyToID:      req.ReplyToID,
		Metadata:       req.Metadata,
		State:          message.StateSent,
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) EditMessage(_ context.Context, messageID string, _ uuid.UUID, newContent string) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == messageID {
			now := time.Now()
			m.messages[i].Content = newContent
			m.messages[i].EditedAt = &now
			return m.messages[i], nil
		}
	}
	return message.Message{}, errInjected
}

func (m *Memory) DeleteMessage(_ context.Context, messageID string, _ uuid.UUID, forEveryone bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == messageID {
			if forEveryone {
				m.messages[i].IsDeleted = true
				m.messages[i].DeleteForEveryone = true
				m.messages[i].Content = message.Tombstone
			}
			return nil
		}
	}
	return nil
}

func (m *Memory) AddReaction(_ context.Context, messageID string, userID uuid.UUID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[messageID] = append(m.reactions[messageID], message.Reaction{
		MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now(),
	})
	return nil
}

func (m *Memory) RemoveReaction(_ context.Context, messageID string, userID uuid.UUID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.reactions[messageID]
	for i, r := range list {
		if r.UserID == userID && r.Emoji == emoji {
			m.reactions[messageID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) GetReactions(_ context.Context, messageID string) ([]message.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Reaction(nil), m.reactions[messageID]...), nil
}

func (m *Memory) PinMessage(_ context.Context, conversationID uuid.UUID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.pinned[conversationID] {
		if id == messageID {
			return nil
		}
	}
	m.pinned[conversationID] = append(m.pinned[conversationID], messageID)
	return nil
}

func (m *Memory) UnpinMessage(_ context.Context, conversationID uuid.UUID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.pinned[conversationID]
	for i, id := range list {
		if id == messageID {
			m.pinned[conversationID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) GetPinnedMessages(_ context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []message.Message
	for _, id := range m.pinned[conversationID] {
		for _, msg := range m.messages {
			if msg.ID == id {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (m *Memory) SendTyping(_ context.Context, _, _ uuid.UUID, _ bool) error {
	return nil
}

var _ transport.Transport = (*Memory)(nil)
