package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain/message"
	"chatsync/internal/timeline"
)

var (
	convA = uuid.New()
	convB = uuid.New()
	alice = uuid.New()
	bob   = uuid.New()
)

func confirmed(id string, conv uuid.UUID, sender uuid.UUID, content string, at time.Time) message.Message {
	return message.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Type:           message.TypeText,
		Content:        content,
		SentAt:         at,
		State:          message.StateSent,
	}
}

func TestIngestIdempotent(t *testing.T) {
	s := NewState(convA)
	m := confirmed("m1", convA, alice, "hello", time.Now())

	s1, outcome := Reduce(s, PushedMessage{Message: m})
	require.Equal(t, OutcomeInserted, outcome)
	require.Equal(t, 1, s1.Len())

	s2, outcome := Reduce(s1, PushedMessage{Message: m})
	require.Equal(t, OutcomeRefreshed, outcome)
	require.Equal(t, 1, s2.Len())
	require.Equal(t, s1.Messages(), s2.Messages())
}

func TestIngestReconcilesOptimisticByClientRandom(t *testing.T) {
	s := NewState(convA)
	opt := message.NewOptimistic(convA, alice, "hi there", message.TypeText, 42, "", nil)
	older := confirmed("m0", convA, bob, "earlier", time.Now().Add(-time.Minute))

	s, _ = Reduce(s, PushedMessage{Message: older})
	s, _ = Reduce(s, SendRequested{Message: opt})
	require.Equal(t, 2, s.Len())

	echo := confirmed("server-9", convA, alice, "hi there", time.Now())
	echo.ClientRandom = 42
	s, outcome := Reduce(s, SendConfirmed{Message: echo})
	require.Equal(t, OutcomeReconciled, outcome)
	require.Equal(t, 2, s.Len())

	got, ok := s.Get("server-9")
	require.True(t, ok)
	require.Equal(t, message.StateSent, got.State)
	_, ok = s.Get(opt.ID)
	require.False(t, ok, "temp id must disappear after reconciliation")

	// Same slot as the optimistic entry, no reflow.
	require.Equal(t, "server-9", s.Messages()[1].ID)
}

func TestIngestClientRandomScopedToConversation(t *testing.T) {
	s := NewState(convA)
	opt := message.NewOptimistic(convA, alice, "mine", message.TypeText, 7, "", nil)
	s, _ = Reduce(s, SendRequested{Message: opt})

	foreign := confirmed("other-conv-msg", convB, alice, "other", time.Now())
	foreign.ClientRandom = 7
	s, outcome := Reduce(s, PushedMessage{Message: foreign})
	require.Equal(t, OutcomeInserted, outcome)
	require.Equal(t, 2, s.Len())

	still, ok := s.Get(opt.ID)
	require.True(t, ok)
	require.Equal(t, message.StateSending, still.State)
}

func TestIngestWithoutClientRandomSkipsReconciliation(t *testing.T) {
	s := NewState(convA)
	opt := message.NewOptimistic(convA, alice, "mine", message.TypeText, 9, "", nil)
	s, _ = Reduce(s, SendRequested{Message: opt})

	system := confirmed("sys-1", convA, bob, "bob joined", time.Now())
	system.Type = message.TypeSystem
	s, outcome := Reduce(s, PushedMessage{Message: system})
	require.Equal(t, OutcomeInserted, outcome)
	require.Equal(t, 2, s.Len())
}

func TestOrderingDeterminismUnderPermutation(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)
	msgs := []message.Message{
		confirmed("a", convA, alice, "one", base),
		confirmed("b", convA, bob, "two", base.Add(time.Minute)),
		confirmed("c", convA, alice, "three", base.Add(2*time.Minute)),
		confirmed("d", convA, bob, "four", base.Add(3*time.Minute)),
	}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}}

	var projections [][]timeline.DisplayItem
	for _, order := range orders {
		s := NewState(convA)
		for _, i := range order {
			s, _ = Reduce(s, PushedMessage{Message: msgs[i]})
		}
		projections = append(projections, timeline.Project(s.Messages(), base.Add(time.Hour)))
	}
	require.Equal(t, projections[0], projections[1])
	require.Equal(t, projections[0], projections[2])
}

func TestDeleteForMeExclusionBlocksResurrection(t *testing.T) {
	s := NewState(convA)
	m := confirmed("m1", convA, alice, "secret", time.Now())
	s, _ = Reduce(s, PushedMessage{Message: m})
	s, _ = Reduce(s, Deleted{MessageID: "m1", ForEveryone: false})
	require.Equal(t, 0, s.Len())
	require.True(t, s.IsExcluded("m1"))

	// Stale push for the same id must not bring it back.
	s, outcome := Reduce(s, PushedMessage{Message: m})
	require.Equal(t, OutcomeExcluded, outcome)
	require.Equal(t, 0, s.Len())
}

func TestDeleteForEveryoneTombstones(t *testing.T) {
	s := NewState(convA)
	m := confirmed("m1", convA, alice, "hello world", time.Now())
	s, _ = Reduce(s, PushedMessage{Message: m})
	s, _ = Reduce(s, Deleted{MessageID: "m1", ForEveryone: true})

	got, ok := s.Get("m1")
	require.True(t, ok, "tombstoned record is retained")
	require.True(t, got.IsDeleted)
	require.True(t, got.DeleteForEveryone)
	require.Equal(t, message.Tombstone, got.Content)
}

func TestDeleteUnknownIDIsNoOp(t *testing.T) {
	s := NewState(convA)
	next, _ := Reduce(s, Deleted{MessageID: "ghost", ForEveryone: true})
	require.Equal(t, 0, next.Len())
}

func TestSendFailedMarksOnlySendingEntries(t *testing.T) {
	s := NewState(convA)
	opt := message.NewOptimistic(convA, alice, "doomed", message.TypeText, 5, "", nil)
	s, _ = Reduce(s, SendRequested{Message: opt})
	s, _ = Reduce(s, SendFailed{TempID: opt.ID})

	got, _ := s.Get(opt.ID)
	require.Equal(t, message.StateFailed, got.State)

	// A late echo for a failed send still reconciles; failure was local.
	echo := confirmed("server-1", convA, alice, "doomed", time.Now())
	echo.ClientRandom = 5
	s, outcome := Reduce(s, SendConfirmed{Message: echo})
	require.Equal(t, OutcomeReconciled, outcome)
	got, _ = s.Get("server-1")
	require.Equal(t, message.StateSent, got.State)
}

func TestReceiptAdvancesStateMonotonically(t *testing.T) {
	s := NewState(convA)
	s, _ = Reduce(s, PushedMessage{Message: confirmed("m1", convA, alice, "x", time.Now())})

	s, _ = Reduce(s, ReceiptReceived{MessageID: "m1", State: message.StateRead})
	got, _ := s.Get("m1")
	require.Equal(t, message.StateRead, got.State)

	// Late delivered receipt must not regress read.
	s, _ = Reduce(s, ReceiptReceived{MessageID: "m1", State: message.StateDelivered})
	got, _ = s.Get("m1")
	require.Equal(t, message.StateRead, got.State)
}

func TestEditedUpdatesContentAndStamp(t *testing.T) {
	s := NewState(convA)
	s, _ = Reduce(s, PushedMessage{Message: confirmed("m1", convA, alice, "old", time.Now())})
	at := time.Now()
	s, _ = Reduce(s, Edited{MessageID: "m1", Content: "new", At: at})

	got, _ := s.Get("m1")
	require.Equal(t, "new", got.Content)
	require.NotNil(t, got.EditedAt)
	require.True(t, got.EditedAt.Equal(at))
}

func TestReactedAddRemoveIdempotent(t *testing.T) {
	s := NewState(convA)
	s, _ = Reduce(s, PushedMessage{Message: confirmed("m1", convA, alice, "x", time.Now())})
	r := message.Reaction{MessageID: "m1", UserID: bob, Emoji: "👍"}

	s, _ = Reduce(s, Reacted{Reaction: r})
	s, _ = Reduce(s, Reacted{Reaction: r}) // duplicate push, no toggle
	require.Len(t, s.Reactions("m1"), 1)

	s, _ = Reduce(s, Reacted{Reaction: r, Removed: true})
	require.Len(t, s.Reactions("m1"), 0)
	s, _ = Reduce(s, Reacted{Reaction: r, Removed: true})
	require.Len(t, s.Reactions("m1"), 0)
}

func TestReconciliationCarriesReactionsAndPins(t *testing.T) {
	s := NewState(convA)
	opt := message.NewOptimistic(convA, alice, "pin me", message.TypeText, 11, "", nil)
	s, _ = Reduce(s, SendRequested{Message: opt})
	s, _ = Reduce(s, Pinned{MessageID: opt.ID})
	s, _ = Reduce(s, Reacted{Reaction: message.Reaction{MessageID: opt.ID, UserID: bob, Emoji: "🔥"}})

	echo := confirmed("server-2", convA, alice, "pin me", time.Now())
	echo.ClientRandom = 11
	s, _ = Reduce(s, SendConfirmed{Message: echo})

	require.True(t, s.Pins().IsPinned("server-2"))
	require.False(t, s.Pins().IsPinned(opt.ID))
	require.Len(t, s.Reactions("server-2"), 1)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := NewState(convA)
	s, _ = Reduce(s, PushedMessage{Message: confirmed("m1", convA, alice, "orig", time.Now())})
	snapshot := s.Messages()

	_, _ = Reduce(s, Edited{MessageID: "m1", Content: "changed", At: time.Now()})
	require.Equal(t, snapshot, s.Messages())
}

func TestOldestSentAtSkipsOptimistic(t *testing.T) {
	s := NewState(convA)
	_, ok := s.OldestSentAt()
	require.False(t, ok)

	opt := message.NewOptimistic(convA, alice, "x", message.TypeText, 3, "", nil)
	s, _ = Reduce(s, SendRequested{Message: opt})
	_, ok = s.OldestSentAt()
	require.False(t, ok, "optimistic timestamps are not cursors")

	old := time.Now().Add(-time.Hour)
	s, _ = Reduce(s, PushedMessage{Message: confirmed("m1", convA, bob, "x", old)})
	cursor, ok := s.OldestSentAt()
	require.True(t, ok)
	require.True(t, cursor.Equal(old))
}
