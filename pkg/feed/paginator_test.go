package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theblob/pkg/domain"
)

// polling bounds for Eventually-style checks across the package tests
const (
	testWait = time.Second
	testTick = 10 * time.Millisecond
)

// fakeFetcher serves pages from a map and counts calls
type fakeFetcher struct {
	pages map[int][]domain.Blob
	err   error
	calls atomic.Int32
	block chan struct{} // when set, FetchPage waits on it
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int) ([]domain.Blob, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[page], nil
}

// nearBottom is a scroll position within the default lookahead of the bottom
var nearBottom = Metrics{ViewportHeight: 800, ScrollOffset: 1300, DocumentHeight: 3000}

// farFromBottom is a scroll position outside the lookahead
var farFromBottom = Metrics{ViewportHeight: 800, ScrollOffset: 100, DocumentHeight: 3000}

func TestPaginator_FetchesWhenNearBottom(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int][]domain.Blob{
		1: {{ID: 10}, {ID: 9}},
		2: {{ID: 8}, {ID: 7}},
	}}
	state := NewState()
	p := NewPaginator(fetcher, state, 0)

	require.Equal(t, 1, p.Page())

	assert.True(t, p.OnScroll(context.Background(), nearBottom))
	assert.Equal(t, 2, p.Page())
	assert.Equal(t, []int64{10, 9}, blobIDs(state.Blobs()))

	// next scroll loads the following page below the first
	assert.True(t, p.OnScroll(context.Background(), nearBottom))
	assert.Equal(t, 3, p.Page())
	assert.Equal(t, []int64{10, 9, 8, 7}, blobIDs(state.Blobs()))
}

func TestPaginator_IgnoresScrollFarFromBottom(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int][]domain.Blob{1: {{ID: 1}}}}
	p := NewPaginator(fetcher, NewState(), 0)

	assert.False(t, p.OnScroll(context.Background(), farFromBottom))
	assert.Zero(t, fetcher.calls.Load())
	assert.Equal(t, 1, p.Page())
}

func TestPaginator_ThresholdBoundary(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int][]domain.Blob{1: {{ID: 1}}, 2: {{ID: 2}}}}
	p := NewPaginator(fetcher, NewState(), 1000)

	// exactly at the lookahead boundary triggers
	exact := Metrics{ViewportHeight: 800, ScrollOffset: 1200, DocumentHeight: 3000}
	assert.True(t, p.OnScroll(context.Background(), exact))

	// one unit above the boundary does not
	above := Metrics{ViewportHeight: 800, ScrollOffset: 1199, DocumentHeight: 3000}
	assert.False(t, p.OnScroll(context.Background(), above))
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestPaginator_RapidScrollSingleFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[int][]domain.Blob{1: {{ID: 1}}},
		block: make(chan struct{}),
	}
	state := NewState()
	p := NewPaginator(fetcher, state, 0)

	done := make(chan bool, 1)
	go func() { done <- p.OnScroll(context.Background(), nearBottom) }()

	// wait for the fetch to be in flight
	require.Eventually(t, func() bool { return p.Loading() }, testWait, testTick)

	// a burst of scroll events while loading triggers nothing extra
	var wg sync.WaitGroup
	results := make([]bool, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.OnScroll(context.Background(), nearBottom)
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.False(t, r, "scroll during pending fetch must be a no-op")
	}

	close(fetcher.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, state.Len())
}

func TestPaginator_FetchFailureRetriesSamePage(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("server down")}
	state := NewState()
	p := NewPaginator(fetcher, state, 0)

	assert.False(t, p.OnScroll(context.Background(), nearBottom))
	assert.Equal(t, 1, p.Page(), "cursor must not advance on failure")
	assert.False(t, p.Loading(), "loading flag must clear on failure")
	assert.Zero(t, state.Len())

	// recovery: same page is retried on the next scroll
	fetcher.err = nil
	fetcher.pages = map[int][]domain.Blob{1: {{ID: 1}}}
	assert.True(t, p.OnScroll(context.Background(), nearBottom))
	assert.Equal(t, 2, p.Page())
}

func TestPaginator_EmptyPageExhausts(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int][]domain.Blob{1: {{ID: 1}}}}
	p := NewPaginator(fetcher, NewState(), 0)

	require.True(t, p.OnScroll(context.Background(), nearBottom))

	// page 2 is empty, the feed latches exhausted
	assert.False(t, p.OnScroll(context.Background(), nearBottom))
	assert.True(t, p.Exhausted())

	// no further fetches once exhausted
	calls := fetcher.calls.Load()
	assert.False(t, p.OnScroll(context.Background(), nearBottom))
	assert.Equal(t, calls, fetcher.calls.Load())
}
