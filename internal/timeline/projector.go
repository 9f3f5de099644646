package timeline

import (
	"sort"
	"time"

	"chatsync/internal/domain/message"
)

// DisplayItem is the closed set of things the renderer draws: a message
// bubble or a date separator. Nothing else ever appears in a projection.
type DisplayItem interface {
	displayItem()
}

// MessageItem wraps one timeline message.
type MessageItem struct {
	Message message.Message
}

// DateSeparator precedes the first displayed message of each calendar day.
type DateSeparator struct {
	Date  time.Time // midnight, local calendar
	Label string
}

func (MessageItem) displayItem()   {}
func (DateSeparator) displayItem() {}

// Project turns the canonical message slice into the render-ready sequence:
// newest-first, a separator before the newest message of every calendar day.
// The input slice is expected in insertion order; the sort is stable so equal
// SentAt values keep that order and the output never jitters. Deleted-for-me
// records never reach this function (they are removed from the set);
// tombstoned and system messages pass through for the renderer to
// special-case.
func Project(msgs []message.Message, now time.Time) []DisplayItem {
	sorted := make([]message.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.After(sorted[j].SentAt)
	})

	out := make([]DisplayItem, 0, len(sorted)+4)
	var lastDay time.Time
	for _, m := range sorted {
		day := localDay(m.SentAt)
		if !day.Equal(lastDay) {
			out = append(out, DateSeparator{Date: day, Label: DayLabel(day, now)})
			lastDay = day
		}
		out = append(out, MessageItem{Message: m})
	}
	return out
}

// localDay truncates t to midnight on the local calendar. Day boundaries
// follow the device timezone, not UTC.
func localDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayLabel renders a separator date the way the conversation header does:
// today, yesterday, bare weekday inside the last seven days, absolute date
// beyond that.
func DayLabel(day, now time.Time) string {
	today := localDay(now)
	switch daysBetween(day, today) {
	case 0:
		return "Today"
	case 1:
		return "Yesterday"
	case 2, 3, 4, 5, 6:
		return day.Weekday().String()
	}
	return day.Format("January 2, 2006")
}

// daysBetween counts calendar days, not 24h spans, so the labels stay right
// across DST transitions where a day is 23 or 25 hours long.
func daysBetween(day, today time.Time) int {
	days := 0
	for d := day; d.Before(today) && days < 8; days++ {
		d = d.AddDate(0, 0, 1)
	}
	return days
}
