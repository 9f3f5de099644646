package session

// PageSize is requested on every history fetch. A page shorter than this
// latches hasMore false for the rest of the session.
const PageSize = 50

// paginator drives cursor-based backward loading. It owns two pieces of
// state: the in-flight guard (concurrent loads are dropped, not queued) and
// the monotonic hasMore latch.
type paginator struct {
	hasMore  bool
	inFlight bool
}

func newPaginator() *paginator {
	return &paginator{hasMore: true}
}

// acquire claims the in-flight slot. It returns false when a load is already
// outstanding or history is exhausted; the caller issues no fetch then.
func (p *paginator) acquire() bool {
	if p.inFlight || !p.hasMore {
		return false
	}
	p.inFlight = true
	return true
}

// settle releases the in-flight slot and applies the latch. A failed load
// leaves hasMore untouched so the caller can retry.
func (p *paginator) settle(pageLen int, err error) {
	p.inFlight = false
	if err != nil {
		return
	}
	if pageLen < PageSize {
		p.hasMore = false
	}
}

func (p *paginator) HasMore() bool {
	return p.hasMore
}
