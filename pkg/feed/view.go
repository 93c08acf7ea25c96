package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
)

// ViewConfig holds the knobs for one feed view session
type ViewConfig struct {
	BaseURL         string        // feed server base URL, e.g. http://localhost:8080
	UpdateInterval  time.Duration // live channel update request interval
	SearchDebounce  time.Duration // quiet period before a typed search fires
	ScrollLookahead float64       // distance from the bottom that triggers the next page
	RequestTimeout  time.Duration // per-request timeout for REST calls
	NoSearch        bool          // view without a search input
}

// View bundles one feed session: the shared state, the paginator, the search
// box and the live channel. Multiple views can coexist, each owning its state.
type View struct {
	State     *State
	Paginator *Paginator
	Search    *SearchBox

	cfg    ViewConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewView constructs a feed view session against the given server
func NewView(cfg ViewConfig) *View {
	state := NewState()
	client := NewClient(cfg.BaseURL, cfg.RequestTimeout)

	var searcher Searcher
	if !cfg.NoSearch {
		searcher = client
	}

	return &View{
		State:     state,
		Paginator: NewPaginator(client, state, cfg.ScrollLookahead),
		Search:    NewSearchBox(searcher, state, cfg.SearchDebounce),
		cfg:       cfg,
	}
}

// Start connects the live channel and launches the background workers.
// Stop or context cancellation tears everything down.
func (v *View) Start(ctx context.Context) error {
	ctx, v.cancel = context.WithCancel(ctx)

	wsURL := strings.Replace(v.cfg.BaseURL, "http", "ws", 1) + "/ws"
	ch, err := Connect(ctx, wsURL, v.State, v.cfg.UpdateInterval)
	if err != nil {
		v.cancel()
		return err
	}

	v.wg.Add(2)
	go func() {
		defer v.wg.Done()
		if err := ch.Run(ctx); err != nil {
			lgr.Printf("[WARN] live channel closed: %v", err)
		}
	}()
	go func() {
		defer v.wg.Done()
		v.Search.Run(ctx)
	}()

	return nil
}

// Stop tears the session down and waits for its workers
func (v *View) Stop() {
	if v.cancel != nil {
		v.cancel()
	}
	v.wg.Wait()
}
