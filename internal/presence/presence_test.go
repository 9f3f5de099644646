package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTrackerExpiresByClock(t *testing.T) {
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := NewTracker(clock)
	alice, bob := uuid.New(), uuid.New()

	tr.Set(alice, true)
	tr.Set(bob, true)
	require.Len(t, tr.Typing(), 2)

	// Refreshing one user extends only that deadline.
	now = now.Add(8 * time.Second)
	tr.Set(alice, true)
	now = now.Add(5 * time.Second)
	require.Equal(t, []uuid.UUID{alice}, tr.Typing())
	require.True(t, tr.IsTyping(alice))
	require.False(t, tr.IsTyping(bob))

	now = now.Add(11 * time.Second)
	require.Empty(t, tr.Typing())
}

func TestTrackerExplicitStop(t *testing.T) {
	tr := NewTracker(nil)
	alice := uuid.New()
	tr.Set(alice, true)
	require.True(t, tr.IsTyping(alice))
	tr.Set(alice, false)
	require.False(t, tr.IsTyping(alice))
}

func TestDebouncerStartsOncePerBurst(t *testing.T) {
	var mu sync.Mutex
	starts, stops := 0, 0
	d := NewDebouncer(
		func() { mu.Lock(); starts++; mu.Unlock() },
		func() { mu.Lock(); stops++; mu.Unlock() },
	)

	d.Keystroke()
	d.Keystroke()
	d.Keystroke()
	mu.Lock()
	require.Equal(t, 1, starts, "one start per burst")
	require.Zero(t, stops)
	mu.Unlock()

	d.Stop()
	mu.Lock()
	require.Equal(t, 1, stops)
	mu.Unlock()

	// A new burst starts again.
	d.Keystroke()
	d.Stop()
	mu.Lock()
	require.Equal(t, 2, starts)
	require.Equal(t, 2, stops)
	mu.Unlock()
}

func TestDebouncerStopWithoutBurstIsSilent(t *testing.T) {
	stops := 0
	d := NewDebouncer(nil, func() { stops++ })
	d.Stop()
	require.Zero(t, stops)
}
