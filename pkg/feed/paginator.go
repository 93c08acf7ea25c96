package feed

import (
	"context"
	"sync"

	"github.com/go-pkgz/lgr"

	"theblob/pkg/domain"
)

// Fetcher loads one page of historical feed blobs. Pages are numbered from 1.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) ([]domain.Blob, error)
}

// Metrics carries the scroll position of the viewing surface
type Metrics struct {
	ViewportHeight float64
	ScrollOffset   float64
	DocumentHeight float64
}

// Paginator loads progressively older pages as the reader nears the bottom.
// The loading flag is the sole guard against overlapping fetches: scroll
// events arriving while a fetch is in flight are dropped, not queued. The
// mutex covers only the cursor and flags, never the fetch itself, so a
// concurrent scroll event returns immediately instead of piling up behind
// a slow page load.
type Paginator struct {
	fetcher   Fetcher
	state     *State
	lookahead float64

	mu        sync.Mutex
	page      int
	loading   bool
	exhausted bool
}

// NewPaginator creates a paginator starting at page 1. Zero lookahead falls
// back to 1000 units.
func NewPaginator(fetcher Fetcher, state *State, lookahead float64) *Paginator {
	if lookahead == 0 {
		lookahead = 1000
	}
	return &Paginator{fetcher: fetcher, state: state, lookahead: lookahead, page: 1}
}

// OnScroll handles one scroll event. It fetches the next page when the
// position is within the lookahead distance of the bottom, no fetch is
// already pending, and the feed is not exhausted. Returns true when a page
// was fetched and appended.
//
// On fetch failure the loading flag is cleared and the cursor stays put, so
// further scrolling retries the same page. An empty page marks the feed
// exhausted and stops all future fetches.
func (p *Paginator) OnScroll(ctx context.Context, m Metrics) bool {
	if m.ViewportHeight+m.ScrollOffset < m.DocumentHeight-p.lookahead {
		return false
	}

	p.mu.Lock()
	if p.loading || p.exhausted {
		p.mu.Unlock()
		return false
	}
	p.loading = true
	page := p.page
	p.mu.Unlock()

	blobs, err := p.fetcher.FetchPage(ctx, page)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false

	if err != nil {
		lgr.Printf("[WARN] failed to fetch feed page %d: %v", page, err)
		return false
	}
	if len(blobs) == 0 {
		lgr.Printf("[DEBUG] feed exhausted at page %d", page)
		p.exhausted = true
		return false
	}

	p.state.Append(blobs)
	p.page++
	return true
}

// Page returns the next page to be fetched
func (p *Paginator) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Loading reports whether a fetch is in flight
func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Exhausted reports whether an empty page has been seen
func (p *Paginator) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted
}
