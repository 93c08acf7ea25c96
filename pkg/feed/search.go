package feed

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"

	"theblob/pkg/domain"
)

// Searcher runs a free-text query against the public feed
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Blob, error)
}

// SearchBox debounces typed input and fires one search per quiet period.
// Every keystroke restarts the timer; when input stays quiet for the debounce
// window the latest text is searched and the results replace the feed.
type SearchBox struct {
	searcher Searcher
	state    *State
	debounce time.Duration
	input    chan string
}

// NewSearchBox creates a search controller. A nil searcher produces an
// inactive box whose Run returns immediately, matching a page without a
// search input. Zero debounce falls back to 500ms.
func NewSearchBox(searcher Searcher, state *State, debounce time.Duration) *SearchBox {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &SearchBox{
		searcher: searcher,
		state:    state,
		debounce: debounce,
		input:    make(chan string, 16),
	}
}

// Type feeds one input change into the box. The argument is the full current
// text of the input, not a delta.
func (s *SearchBox) Type(text string) {
	select {
	case s.input <- text:
	default:
		// drop intermediate keystrokes when the worker lags, the final
		// text still arrives with the next change event
	}
}

// Run processes keystrokes until the context is canceled. Not active when no
// searcher is bound.
func (s *SearchBox) Run(ctx context.Context) {
	if s.searcher == nil {
		lgr.Printf("[DEBUG] search input not present, controller inactive")
		return
	}

	// debounce timer, armed on the first keystroke
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending string

	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.input:
			pending = text
			// reset debounce window
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
		case <-timer.C:
			s.search(ctx, pending)
		}
	}
}

// search runs one query and replaces the feed with the results
func (s *SearchBox) search(ctx context.Context, query string) {
	blobs, err := s.searcher.Search(ctx, query)
	if err != nil {
		lgr.Printf("[WARN] search %q failed: %v", query, err)
		return
	}
	s.state.Replace(blobs)
	lgr.Printf("[DEBUG] search %q returned %d blobs", query, len(blobs))
}
