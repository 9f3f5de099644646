package reactions

import (
	"chatsync/internal/domain/message"

	"github.com/google/uuid"
)

// Summary is the per-emoji rollup shown on a message bubble.
type Summary struct {
	Count         int
	ReactedByUser bool
}

// Aggregate folds a flat reaction list into emoji -> summary. Pure, single
// pass; ReactedByUser is true iff any reaction in the group belongs to
// forUser. Toggling is the caller's job, not the aggregator's.
func Aggregate(list []message.Reaction, forUser uuid.UUID) map[string]Summary {
	out := make(map[string]Summary, len(list))
	for _, r := range list {
		s := out[r.Emoji]
		s.Count++
		if r.UserID == forUser {
			s.ReactedByUser = true
		}
		out[r.Emoji] = s
	}
	return out
}

// Toggle returns the list with (userID, emoji) added if absent or removed if
// an identical pair already exists, plus whether the result contains it.
func Toggle(list []message.Reaction, messageID string, userID uuid.UUID, emoji string) ([]message.Reaction, bool) {
	for i, r := range list {
		if r.UserID == userID && r.Emoji == emoji {
			return append(list[:i:i], list[i+1:]...), false
		}
	}
	return append(list, message.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}), true
}
