package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/message"
	"chatsync/internal/timeline"
	"chatsync/internal/transport"
	"chatsync/internal/transport/transporttest"
	chatsync_errors "chatsync/pkg/errors"
)

func newTestSession(t *testing.T) (*Session, *transporttest.Memory, uuid.UUID, uuid.UUID) {
	t.Helper()
	conv, user := uuid.New(), uuid.New()
	mem := transporttest.NewMemory()
	return New(conv, user, mem, nil), mem, conv, user
}

func TestOptimisticSendThenConfirm(t *testing.T) {
	sess, mem, _, _ := newTestSession(t)

	sent, err := sess.Send(context.Background(), "hello", message.TypeText, "", nil)
	require.NoError(t, err)
	require.False(t, sent.IsOptimistic())
	require.Equal(t, message.StateSent, sent.State)
	require.Equal(t, 1, sess.Snapshot().Len())

	// The push echo of the same confirmation must not duplicate the record.
	outcome := sess.Ingest(sent)
	require.Equal(t, OutcomeRefreshed, outcome)
	require.Equal(t, 1, sess.Snapshot().Len())

	require.Len(t, mem.SentRequests, 1)
	require.NotZero(t, mem.SentRequests[0].ClientRandom)
}

func TestOptimisticSendEchoByClientRandom(t *testing.T) {
	// Confirmation arriving over push instead of the REST response.
	sess, _, conv, user := newTestSession(t)

	opt := message.NewOptimistic(conv, user, "hi", message.TypeText, 42, "", nil)
	sess.mu.Lock()
	sess.dispatch(SendRequested{Message: opt})
	sess.mu.Unlock()

	snap := sess.Snapshot()
	require.Equal(t, 1, snap.Len())
	require.Equal(t, message.StateSending, snap.Messages()[0].State)

	outcome := sess.Ingest(message.Message{
		ID: "server-9", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "hi", ClientRandom: 42,
		SentAt: time.Now(), State: message.StateSent,
	})
	require.Equal(t, OutcomeReconciled, outcome)

	snap = sess.Snapshot()
	require.Equal(t, 1, snap.Len())
	got, ok := snap.Get("server-9")
	require.True(t, ok)
	require.Equal(t, message.StateSent, got.State)
}

func TestSendFailureKeepsRecordAndRetrySpawnsNewEntry(t *testing.T) {
	sess, mem, _, _ := newTestSession(t)
	mem.FailSends = true

	failed, err := sess.Send(context.Background(), "doomed", message.TypeText, "", nil)
	require.ErrorIs(t, err, chatsync_errors.ErrTransport)
	require.True(t, failed.IsOptimistic())
	require.Equal(t, message.StateFailed, failed.State)
	require.Equal(t, 1, sess.Snapshot().Len())

	mem.FailSends = false
	retried, err := sess.Retry(context.Background(), failed.ID)
	require.NoError(t, err)
	require.Equal(t, "doomed", retried.Content)

	// The failed record stays for audit; the retry is a separate entry.
	snap := sess.Snapshot()
	require.Equal(t, 2, snap.Len())
	still, ok := snap.Get(failed.ID)
	require.True(t, ok)
	require.Equal(t, message.StateFailed, still.State)
}

func TestRetryRejectsNonFailedMessages(t *testing.T) {
	sess, _, _, _ := newTestSession(t)
	sent, err := sess.Send(context.Background(), "fine", message.TypeText, "", nil)
	require.NoError(t, err)

	_, err = sess.Retry(context.Background(), sent.ID)
	require.ErrorIs(t, err, chatsync_errors.ErrInvalidInput)
	_, err = sess.Retry(context.Background(), "ghost")
	require.ErrorIs(t, err, chatsync_errors.ErrNotFound)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	sess, _, _, _ := newTestSession(t)
	_, err := sess.Send(context.Background(), "   ", message.TypeText, "", nil)
	require.ErrorIs(t, err, chatsync_errors.ErrInvalidInput)
	require.Equal(t, 0, sess.Snapshot().Len())
}

func seedHistory(mem *transporttest.Memory, conv, sender uuid.UUID, n int, newest time.Time) {
	for i := 0; i < n; i++ {
		mem.Seed(message.Message{
			ID:             fmt.Sprintf("h-%03d", i),
			ConversationID: conv,
			SenderID:       sender,
			Type:           message.TypeText,
			Content:        fmt.Sprintf("history %d", i),
			SentAt:         newest.Add(-time.Duration(i) * time.Minute),
			State:          message.StateRead,
		})
	}
}

func TestLoadOlderPagesBackwardAndLatches(t *testing.T) {
	sess, mem, conv, _ := newTestSession(t)
	seedHistory(mem, conv, uuid.New(), 120, time.Now())

	n, err := sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, PageSize, n)
	require.True(t, sess.HasMore())

	cursor1, _ := sess.Snapshot().OldestSentAt()

	n, err = sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, PageSize, n)
	require.Equal(t, 100, sess.Snapshot().Len(), "pages never overlap")

	// Monotonicity: the cursor only ever moves backward.
	cursor2, _ := sess.Snapshot().OldestSentAt()
	require.True(t, cursor2.Before(cursor1))

	n, err = sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.False(t, sess.HasMore(), "short page latches exhaustion")

	n, err = sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n, "exhausted session issues no further fetches")
	require.Equal(t, 120, sess.Snapshot().Len())
}

func TestLoadOlderFailureLeavesStateIntact(t *testing.T) {
	sess, mem, conv, _ := newTestSession(t)
	seedHistory(mem, conv, uuid.New(), 10, time.Now())

	_, err := sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, sess.Snapshot().Len())
	require.False(t, sess.HasMore())

	sess2, mem2, conv2, _ := newTestSession(t)
	seedHistory(mem2, conv2, uuid.New(), 60, time.Now())
	mem2.FailFetches = true
	_, err = sess2.LoadOlder(context.Background())
	require.ErrorIs(t, err, chatsync_errors.ErrTransport)
	require.Equal(t, 0, sess2.Snapshot().Len())
	require.True(t, sess2.HasMore(), "failure leaves the latch untouched")

	mem2.FailFetches = false
	n, err := sess2.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Equal(t, PageSize, n)
}

// blockingTransport parks FetchMessages until released, to exercise the
// in-flight guard.
type blockingTransport struct {
	*transporttest.Memory
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingTransport) FetchMessages(ctx context.Context, conv uuid.UUID, limit int, before *time.Time) ([]message.Message, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Memory.FetchMessages(ctx, conv, limit, before)
}

func TestLoadOlderInFlightGuard(t *testing.T) {
	conv, user := uuid.New(), uuid.New()
	bt := &blockingTransport{
		Memory:  transporttest.NewMemory(),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	seedHistory(bt.Memory, conv, uuid.New(), 5, time.Now())
	sess := New(conv, user, bt, nil)

	done := make(chan int, 1)
	go func() {
		n, _ := sess.LoadOlder(context.Background())
		done <- n
	}()
	<-bt.started

	// Second call while the first is outstanding: dropped, no second fetch.
	n, err := sess.LoadOlder(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	close(bt.release)
	require.Equal(t, 5, <-done)
	require.Equal(t, 5, sess.Snapshot().Len())
}

func TestEditValidation(t *testing.T) {
	sess, mem, conv, user := newTestSession(t)
	other := uuid.New()

	fresh := message.Message{ID: "mine", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "v1", SentAt: time.Now(), State: message.StateSent}
	stale := message.Message{ID: "stale", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "old", SentAt: time.Now().Add(-25 * time.Hour), State: message.StateRead}
	theirs := message.Message{ID: "theirs", ConversationID: conv, SenderID: other,
		Type: message.TypeText, Content: "x", SentAt: time.Now(), State: message.StateRead}
	mem.Seed(fresh, stale, theirs)
	sess.Ingest(fresh)
	sess.Ingest(stale)
	sess.Ingest(theirs)

	require.ErrorIs(t, sess.Edit(context.Background(), "ghost", "y"), chatsync_errors.ErrNotFound)
	require.ErrorIs(t, sess.Edit(context.Background(), "theirs", "y"), chatsync_errors.ErrUnauthorized)
	require.ErrorIs(t, sess.Edit(context.Background(), "stale", "y"), chatsync_errors.ErrEditWindowExpired)
	require.ErrorIs(t, sess.Edit(context.Background(), "mine", "  "), chatsync_errors.ErrInvalidInput)

	require.NoError(t, sess.Edit(context.Background(), "mine", "v2"))
	got, _ := sess.Snapshot().Get("mine")
	require.Equal(t, "v2", got.Content)
	require.NotNil(t, got.EditedAt)
}

func TestDeleteForMeSurvivesStalePush(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	m := message.Message{ID: "m1", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "remove me", SentAt: time.Now(), State: message.StateRead}
	sess.Ingest(m)

	require.NoError(t, sess.Delete(context.Background(), "m1", false))
	require.Equal(t, 0, sess.Snapshot().Len())

	outcome := sess.Ingest(m)
	require.Equal(t, OutcomeExcluded, outcome)
	require.Equal(t, 0, sess.Snapshot().Len())
}

func TestDeleteValidation(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	tooOld := message.Message{ID: "ancient", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "x", SentAt: time.Now().Add(-49 * time.Hour), State: message.StateRead}
	sess.Ingest(tooOld)

	require.ErrorIs(t, sess.Delete(context.Background(), "ghost", true), chatsync_errors.ErrNotFound)
	require.ErrorIs(t, sess.Delete(context.Background(), "ancient", true), chatsync_errors.ErrDeleteWindowExpired)
}

func TestToggleReactionRoundTrip(t *testing.T) {
	sess, _, conv, _ := newTestSession(t)
	m := message.Message{ID: "m1", ConversationID: conv, SenderID: uuid.New(),
		Type: message.TypeText, Content: "nice", SentAt: time.Now(), State: message.StateRead}
	sess.Ingest(m)

	summary := sess.ToggleReaction(context.Background(), "m1", "👍")
	require.Equal(t, 1, summary["👍"].Count)
	require.True(t, summary["👍"].ReactedByUser)

	summary = sess.ToggleReaction(context.Background(), "m1", "👍")
	require.Zero(t, summary["👍"].Count)
}

func TestTogglePinInvolution(t *testing.T) {
	sess, _, conv, _ := newTestSession(t)
	m := message.Message{ID: "m1", ConversationID: conv, SenderID: uuid.New(),
		Type: message.TypeText, Content: "pin", SentAt: time.Now(), State: message.StateRead}
	sess.Ingest(m)

	require.True(t, sess.TogglePin(context.Background(), "m1"))
	require.Equal(t, []string{"m1"}, sess.PinnedIDs())
	require.False(t, sess.TogglePin(context.Background(), "m1"))
	require.Empty(t, sess.PinnedIDs())
}

func TestSearchSkipsTombstones(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	sess.Ingest(message.Message{ID: "m1", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "hello world", SentAt: time.Now().Add(-time.Minute), State: message.StateRead})
	sess.Ingest(message.Message{ID: "m2", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "hello again", SentAt: time.Now(), State: message.StateRead})

	st := sess.Search("hello")
	require.Equal(t, []string{"m2", "m1"}, st.Results)

	require.NoError(t, sess.Delete(context.Background(), "m1", true))
	st = sess.Search("hello")
	require.Equal(t, []string{"m2"}, st.Results, "tombstoned content never matches")
}

func TestSearchNavigationWraps(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	for i, id := range []string{"m1", "m2", "m3"} {
		sess.Ingest(message.Message{ID: id, ConversationID: conv, SenderID: user,
			Type: message.TypeText, Content: "match here", SentAt: time.Now().Add(time.Duration(i) * time.Second), State: message.StateRead})
	}
	st := sess.Search("match")
	require.Equal(t, 0, st.CurrentIndex)

	st = sess.SearchNext()
	require.Equal(t, 1, st.CurrentIndex)
	st = sess.SearchNext()
	require.Equal(t, 2, st.CurrentIndex)
	st = sess.SearchNext()
	require.Equal(t, 0, st.CurrentIndex, "next wraps around")
	st = sess.SearchPrev()
	require.Equal(t, 2, st.CurrentIndex, "prev wraps around")
}

func TestAnnotate(t *testing.T) {
	sess, _, conv, _ := newTestSession(t)
	m := message.Message{ID: "m1", ConversationID: conv, SenderID: uuid.New(),
		Type: message.TypeText, Content: "note", SentAt: time.Now(), State: message.StateDelivered}
	sess.Ingest(m)
	sess.TogglePin(context.Background(), "m1")
	sess.ToggleReaction(context.Background(), "m1", "🔥")

	ann, ok := sess.Annotate("m1")
	require.True(t, ok)
	require.Equal(t, message.StateDelivered, ann.State)
	require.True(t, ann.IsPinned)
	require.Equal(t, 1, ann.Reactions["🔥"].Count)

	_, ok = sess.Annotate("ghost")
	require.False(t, ok)
}

func TestTimelineProjection(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	sess.Ingest(message.Message{ID: "m1", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "a", SentAt: time.Now().Add(-time.Minute), State: message.StateRead})
	sess.Ingest(message.Message{ID: "m2", ConversationID: conv, SenderID: user,
		Type: message.TypeText, Content: "b", SentAt: time.Now(), State: message.StateRead})

	items := sess.Timeline()
	require.Len(t, items, 3) // separator + two messages
	_, isSep := items[0].(timeline.DateSeparator)
	require.True(t, isSep)
	first, _ := items[1].(timeline.MessageItem)
	require.Equal(t, "m2", first.Message.ID, "newest first")
}

func TestPushEventRouting(t *testing.T) {
	sess, _, conv, user := newTestSession(t)
	other := uuid.New()

	sess.handlePush(context.Background(), transport.NewMessageEvent{Message: message.Message{
		ID: "m1", ConversationID: conv, SenderID: other,
		Type: message.TypeText, Content: "incoming", SentAt: time.Now(), State: message.StateSent,
	}})
	require.Equal(t, 1, sess.Snapshot().Len())

	// Foreign conversation: dropped.
	sess.handlePush(context.Background(), transport.NewMessageEvent{Message: message.Message{
		ID: "m2", ConversationID: uuid.New(), SenderID: other,
		Type: message.TypeText, Content: "foreign", SentAt: time.Now(), State: message.StateSent,
	}})
	require.Equal(t, 1, sess.Snapshot().Len())

	sess.handlePush(context.Background(), transport.ReceiptEvent{MessageID: "m1", UserID: other, State: message.StateRead})
	got, _ := sess.Snapshot().Get("m1")
	require.Equal(t, message.StateRead, got.State)

	// Receipt for an unknown id: warn and drop.
	sess.handlePush(context.Background(), transport.ReceiptEvent{MessageID: "ghost", UserID: other, State: message.StateRead})

	sess.handlePush(context.Background(), transport.TypingEvent{ConversationID: conv, UserID: other, Typing: true})
	require.Len(t, sess.TypingUsers(), 1)
	// Own typing echo is ignored.
	sess.handlePush(context.Background(), transport.TypingEvent{ConversationID: conv, UserID: user, Typing: true})
	require.Len(t, sess.TypingUsers(), 1)
	sess.handlePush(context.Background(), transport.TypingEvent{ConversationID: conv, UserID: other, Typing: false})
	require.Empty(t, sess.TypingUsers())
}

func TestClosedSessionRejectsWork(t *testing.T) {
	sess, _, _, _ := newTestSession(t)
	sess.Close()

	_, err := sess.Send(context.Background(), "x", message.TypeText, "", nil)
	require.ErrorIs(t, err, chatsync_errors.ErrSessionClosed)
	_, err = sess.LoadOlder(context.Background())
	require.ErrorIs(t, err, chatsync_errors.ErrSessionClosed)
}
