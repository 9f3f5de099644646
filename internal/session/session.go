package session

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"chatsync/internal/domain/message"
	"chatsync/internal/presence"
	"chatsync/internal/reactions"
	"chatsync/internal/search"
	"chatsync/internal/timeline"
	"chatsync/internal/transport"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"github.com/google/uuid"
)

// Mutation windows, measured from SentAt.
const (
	EditWindow   = 24 * time.Hour
	DeleteWindow = 48 * time.Hour
)

// Session owns the canonical message set of one conversation and is the only
// thing that mutates it. Entry points take the session mutex, so a push
// callback, a fetch completion and a user action never interleave
// mid-mutation; network calls themselves run outside the lock.
type Session struct {
	conversationID uuid.UUID
	userID         uuid.UUID
	transport      transport.Transport
	log            *logger.Logger

	mu       sync.Mutex
	state    State
	pager    *paginator
	typing   *presence.Tracker
	searchIx *search.Index
	closed   bool

	debounce *presence.Debouncer
}

func New(conversationID, userID uuid.UUID, t transport.Transport, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Session{
		conversationID: conversationID,
		userID:         userID,
		transport:      t,
		log:            log,
		state:          NewState(conversationID),
		pager:          newPaginator(),
		typing:         presence.NewTracker(nil),
		searchIx:       search.NewIndex(),
	}
	s.debounce = presence.NewDebouncer(
		func() { s.notifyTyping(true) },
		func() { s.notifyTyping(false) },
	)
	return s
}

// Run consumes the push channel until ctx is cancelled or the channel's
// event stream closes. Teardown is cancelling ctx; the channel unsubscribes
// itself.
func (s *Session) Run(ctx context.Context, ch transport.PushChannel) {
	ctx = context.WithValue(ctx, logger.ConversationIdKey, s.conversationID.String())
	ctx = context.WithValue(ctx, logger.UserIdKey, s.userID.String())
	for {
		select {
		case <-ctx.Done():
			s.debounce.Stop()
			return
		case ev, ok := <-ch.Events():
			if !ok {
				return
			}
			s.handlePush(ctx, ev)
		}
	}
}

// handlePush routes one realtime event into the reducer. Events for other
// conversations are dropped.
func (s *Session) handlePush(ctx context.Context, ev transport.PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case transport.NewMessageEvent:
		if e.Message.ConversationID != s.conversationID {
			return
		}
		s.dispatch(PushedMessage{Message: e.Message})
	case transport.MessageUpdatedEvent:
		if e.Message.ConversationID != s.conversationID {
			return
		}
		s.dispatch(PushedMessage{Message: e.Message})
	case transport.TypingEvent:
		if e.ConversationID != s.conversationID || e.UserID == s.userID {
			return
		}
		s.typing.Set(e.UserID, e.Typing)
	case transport.ReceiptEvent:
		if _, ok := s.state.Get(e.MessageID); !ok {
			s.log.WarnfCtx(ctx, "receipt for unknown message %s, dropped", e.MessageID)
			return
		}
		s.dispatch(ReceiptReceived{MessageID: e.MessageID, State: e.State})
	case transport.ReactionEvent:
		s.dispatch(Reacted{Reaction: e.Reaction, Removed: e.Removed})
	case transport.PinEvent:
		if e.ConversationID != s.conversationID {
			return
		}
		s.dispatch(Pinned{MessageID: e.MessageID, Unpinned: e.Unpinned})
	}
}

// dispatch runs one event through the reducer. Callers hold s.mu.
func (s *Session) dispatch(ev Event) MergeOutcome {
	next, outcome := Reduce(s.state, ev)
	s.state = next
	// The result cursor would point at stale positions after any set change.
	s.searchIx.Invalidate()
	return outcome
}

// Ingest merges one confirmed message, for callers that sit between the
// transport and the session (tests, replay tooling).
func (s *Session) Ingest(m message.Message) MergeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch(PushedMessage{Message: m})
}

// LoadOlder fetches the next page of history. It is a no-op returning
// (0, nil) while a load is in flight or when history is exhausted. On
// failure the already-loaded set and the hasMore latch are untouched and the
// error is retryable.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, chatsync_errors.ErrSessionClosed
	}
	if !s.pager.acquire() {
		s.mu.Unlock()
		return 0, nil
	}
	var before *time.Time
	if cursor, ok := s.state.OldestSentAt(); ok {
		before = &cursor
	}
	s.mu.Unlock()

	page, err := s.transport.FetchMessages(ctx, s.conversationID, PageSize, before)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pager.settle(len(page), err)
	if err != nil {
		s.log.Warnf("load older failed: %v", err)
		return 0, chatsync_errors.Transport("fetch messages", err)
	}
	s.dispatch(FetchedPage{Messages: page})
	return len(page), nil
}

// HasMore reports whether older history may remain on the server.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pager.HasMore()
}

// Send creates the optimistic entry, dispatches to the transport and
// reconciles or fails it on the answer. The optimistic record renders
// immediately; a failure keeps it with state FAILED so the user can retry.
func (s *Session) Send(ctx context.Context, content string, msgType message.Type, replyToID string, metadata map[string]string) (message.Message, error) {
	if msgType != message.TypeMedia && strings.TrimSpace(content) == "" {
		return message.Message{}, chatsync_errors.ErrInvalidInput
	}

	clientRandom := newClientRandom()
	optimistic := message.NewOptimistic(s.conversationID, s.userID, content, msgType, clientRandom, replyToID, metadata)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return message.Message{}, chatsync_errors.ErrSessionClosed
	}
	s.dispatch(SendRequested{Message: optimistic})
	s.mu.Unlock()

	s.debounce.Stop()

	confirmed, err := s.transport.SendMessage(ctx, transport.SendRequest{
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Type:           msgType,
		Content:        content,
		ClientRandom:   clientRandom,
		ReplyToID:      replyToID,
		Metadata:       metadata,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dispatch(SendFailed{TempID: optimistic.ID})
		m, _ := s.state.Get(optimistic.ID)
		return m, chatsync_errors.Transport("send message", err)
	}
	s.dispatch(SendConfirmed{Message: confirmed})
	m, ok := s.state.Get(confirmed.ID)
	if !ok {
		// Deleted for me while the send was in flight.
		return confirmed, nil
	}
	return m, nil
}

// Retry re-sends a failed optimistic message as a new entry. The failed
// record stays in the timeline.
func (s *Session) Retry(ctx context.Context, tempID string) (message.Message, error) {
	s.mu.Lock()
	failed, ok := s.state.Get(tempID)
	s.mu.Unlock()
	if !ok {
		return message.Message{}, chatsync_errors.ErrNotFound
	}
	if failed.State != message.StateFailed {
		return message.Message{}, chatsync_errors.ErrInvalidInput
	}
	return s.Send(ctx, failed.Content, failed.Type, failed.ReplyToID, failed.Metadata)
}

// Edit updates a sender-owned message within the 24h window.
func (s *Session) Edit(ctx context.Context, messageID, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return chatsync_errors.ErrInvalidInput
	}
	s.mu.Lock()
	m, ok := s.state.Get(messageID)
	s.mu.Unlock()
	switch {
	case !ok:
		return chatsync_errors.ErrNotFound
	case m.SenderID != s.userID:
		return chatsync_errors.ErrUnauthorized
	case m.IsDeleted:
		return chatsync_errors.ErrAlreadyDeleted
	case time.Since(m.SentAt) >= EditWindow:
		return chatsync_errors.ErrEditWindowExpired
	}

	updated, err := s.transport.EditMessage(ctx, messageID, s.conversationID, newContent)
	if err != nil {
		return chatsync_errors.Transport("edit message", err)
	}
	at := time.Now()
	if updated.EditedAt != nil {
		at = *updated.EditedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(Edited{MessageID: messageID, Content: newContent, At: at})
	return nil
}

// Delete removes a message: for everyone (tombstone, record retained) or for
// me (record dropped and its id excluded so a stale push cannot resurrect
// it).
func (s *Session) Delete(ctx context.Context, messageID string, forEveryone bool) error {
	s.mu.Lock()
	m, ok := s.state.Get(messageID)
	s.mu.Unlock()
	switch {
	case !ok:
		return chatsync_errors.ErrNotFound
	case m.SenderID != s.userID:
		return chatsync_errors.ErrUnauthorized
	case m.IsDeleted && forEveryone:
		return chatsync_errors.ErrAlreadyDeleted
	case time.Since(m.SentAt) >= DeleteWindow:
		return chatsync_errors.ErrDeleteWindowExpired
	}

	// Optimistic entries never reached the server; for-me deletion is local.
	if !m.IsOptimistic() {
		if err := s.transport.DeleteMessage(ctx, messageID, s.conversationID, forEveryone); err != nil {
			return chatsync_errors.Transport("delete message", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(Deleted{MessageID: messageID, ForEveryone: forEveryone})
	return nil
}

// ToggleReaction adds the triple when absent, removes it when present, then
// tells the server. Transport failures are logged and swallowed: the local
// toggle already happened and the operation is safe to repeat.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) map[string]reactions.Summary {
	s.mu.Lock()
	if _, ok := s.state.Get(messageID); !ok {
		s.mu.Unlock()
		s.log.Warnf("reaction on unknown message %s, dropped", messageID)
		return nil
	}
	present := false
	for _, r := range s.state.Reactions(messageID) {
		if r.UserID == s.userID && r.Emoji == emoji {
			present = true
			break
		}
	}
	s.dispatch(Reacted{
		Reaction: message.Reaction{MessageID: messageID, UserID: s.userID, Emoji: emoji},
		Removed:  present,
	})
	summary := reactions.Aggregate(s.state.Reactions(messageID), s.userID)
	s.mu.Unlock()

	var err error
	if present {
		err = s.transport.RemoveReaction(ctx, messageID, s.userID, emoji)
	} else {
		err = s.transport.AddReaction(ctx, messageID, s.userID, emoji)
	}
	if err != nil {
		s.log.Warnf("reaction sync failed for %s: %v", messageID, err)
	}
	return summary
}

// TogglePin flips pin membership and tells the server. Like reactions,
// failures are logged and swallowed.
func (s *Session) TogglePin(ctx context.Context, messageID string) bool {
	s.mu.Lock()
	pinned := !s.state.Pins().IsPinned(messageID)
	s.dispatch(Pinned{MessageID: messageID, Unpinned: !pinned})
	s.mu.Unlock()

	var err error
	if pinned {
		err = s.transport.PinMessage(ctx, s.conversationID, messageID)
	} else {
		err = s.transport.UnpinMessage(ctx, s.conversationID, messageID)
	}
	if err != nil {
		s.log.Warnf("pin sync failed for %s: %v", messageID, err)
	}
	return pinned
}

// PinnedIDs returns the pinned message ids in pin order.
func (s *Session) PinnedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Pins().IDs()
}

// Timeline projects the canonical set into the render-ready sequence.
func (s *Session) Timeline() []timeline.DisplayItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timeline.Project(s.state.Messages(), time.Now())
}

// SearchState is what the search UI binds to.
type SearchState struct {
	Query        string
	Results      []string
	CurrentIndex int
}

// Search recomputes matches over the current timeline, newest-first.
func (s *Session) Search(query string) SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.state.Messages()
	// Newest-first to mirror the display order.
	proj := timeline.Project(msgs, time.Now())
	ordered := make([]message.Message, 0, len(msgs))
	for _, item := range proj {
		if mi, ok := item.(timeline.MessageItem); ok {
			ordered = append(ordered, mi.Message)
		}
	}
	s.searchIx.Run(query, ordered)
	return s.searchState()
}

// SearchNext moves the cursor toward older matches, wrapping.
func (s *Session) SearchNext() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchIx.Next()
	return s.searchState()
}

// SearchPrev moves the cursor toward newer matches, wrapping.
func (s *Session) SearchPrev() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchIx.Prev()
	return s.searchState()
}

func (s *Session) searchState() SearchState {
	return SearchState{
		Query:        s.searchIx.Query(),
		Results:      s.searchIx.IDs(),
		CurrentIndex: s.searchIx.CurrentIndex(),
	}
}

// Annotations is the per-message render state next to the bubble itself.
type Annotations struct {
	State         message.DeliveryState
	Reactions     map[string]reactions.Summary
	IsPinned      bool
	IsHighlighted bool
}

// Annotate returns the render annotations for one message.
func (s *Session) Annotate(messageID string) (Annotations, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.Get(messageID)
	if !ok {
		return Annotations{}, false
	}
	return Annotations{
		State:         m.State,
		Reactions:     reactions.Aggregate(s.state.Reactions(messageID), s.userID),
		IsPinned:      s.state.Pins().IsPinned(messageID),
		IsHighlighted: s.searchIx.Current() == messageID,
	}, true
}

// TypingUsers returns the participants with a live typing indicator.
func (s *Session) TypingUsers() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.Typing()
}

// Keystroke feeds the typing debouncer: typing.started on the first stroke
// of a burst, typing.stopped after three idle seconds.
func (s *Session) Keystroke() {
	s.debounce.Keystroke()
}

func (s *Session) notifyTyping(typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transport.SendTyping(ctx, s.conversationID, s.userID, typing); err != nil {
		s.log.Warnf("typing notify failed: %v", err)
	}
}

// Close stops timers and rejects further loads and sends.
func (s *Session) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Snapshot returns a copy of the canonical state, for tests and tooling.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func newClientRandom() int64 {
	for {
		if v := rand.Int64(); v != 0 {
			return v
		}
	}
}
