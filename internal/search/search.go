package search

import (
	"strings"

	"chatsync/internal/domain/message"
)

// Index computes substring matches over the current timeline and keeps a
// navigable cursor through the results. Results are ordered newest-first to
// match the display order; Next moves toward older matches.
type Index struct {
	query   string
	results []string
	current int
}

func NewIndex() *Index {
	return &Index{current: -1}
}

// Run recomputes matches for query against msgs (expected newest-first).
// Matching is case-insensitive substring; deleted and tombstoned records
// never match, whatever their original content said. An empty query clears
// the index.
func (x *Index) Run(query string, msgs []message.Message) []string {
	x.query = query
	x.results = x.results[:0]
	x.current = -1
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	for _, m := range msgs {
		if m.IsDeleted || m.Type == message.TypeSystem {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) {
			x.results = append(x.results, m.ID)
		}
	}
	if len(x.results) > 0 {
		x.current = 0
	}
	return x.IDs()
}

// Invalidate drops stale results after the canonical set changed; the caller
// re-runs with the same query when it wants fresh matches.
func (x *Index) Invalidate() {
	x.results = x.results[:0]
	x.current = -1
}

func (x *Index) Query() string {
	return x.query
}

func (x *Index) IDs() []string {
	out := make([]string, len(x.results))
	copy(out, x.results)
	return out
}

func (x *Index) Len() int {
	return len(x.results)
}

// Current returns the focused match id, or "" when there are no results.
func (x *Index) Current() string {
	if x.current < 0 || x.current >= len(x.results) {
		return ""
	}
	return x.results[x.current]
}

func (x *Index) CurrentIndex() int {
	return x.current
}

// Next advances toward older matches, wrapping around.
func (x *Index) Next() string {
	if len(x.results) == 0 {
		return ""
	}
	x.current = (x.current + 1) % len(x.results)
	return x.results[x.current]
}

// Prev moves toward newer matches, wrapping around.
func (x *Index) Prev() string {
	if len(x.results) == 0 {
		return ""
	}
	x.current = (x.current - 1 + len(x.results)) % len(x.results)
	return x.results[x.current]
}
