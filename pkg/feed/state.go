package feed

import (
	"sync"

	"theblob/pkg/domain"
)

// State is the single owner of the rendered feed. Three writers feed it -
// live channel pushes prepend, pagination appends, search replaces - and all
// of them go through the mutex here. Blobs already present are dropped by ID,
// so an item arriving over the live channel after it was paginated in is not
// rendered twice.
type State struct {
	mu    sync.Mutex
	blobs []domain.Blob
	seen  map[int64]struct{}
}

// NewState creates an empty feed state
func NewState() *State {
	return &State{seen: make(map[int64]struct{})}
}

// Prepend inserts new blobs at the top of the feed, preserving their order.
// Duplicates are skipped; the number of blobs actually added is returned.
func (s *State) Prepend(blobs []domain.Blob) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.filter(blobs)
	if len(fresh) == 0 {
		return 0
	}
	s.blobs = append(fresh, s.blobs...)
	return len(fresh)
}

// Append adds older blobs at the bottom of the feed, preserving their order.
// Duplicates are skipped; the number of blobs actually added is returned.
func (s *State) Append(blobs []domain.Blob) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.filter(blobs)
	if len(fresh) == 0 {
		return 0
	}
	s.blobs = append(s.blobs, fresh...)
	return len(fresh)
}

// Replace swaps the whole feed for search results
func (s *State) Replace(blobs []domain.Blob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs = nil
	s.seen = make(map[int64]struct{})
	s.blobs = append(s.blobs, s.filter(blobs)...)
}

// Blobs returns a copy of the current feed, newest first
func (s *State) Blobs() []domain.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Blob, len(s.blobs))
	copy(out, s.blobs)
	return out
}

// Len returns the number of rendered blobs
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// filter drops already-seen blobs and marks the rest. Callers must hold the lock.
func (s *State) filter(blobs []domain.Blob) []domain.Blob {
	fresh := make([]domain.Blob, 0, len(blobs))
	for _, b := range blobs {
		if _, ok := s.seen[b.ID]; ok {
			continue
		}
		s.seen[b.ID] = struct{}{}
		fresh = append(fresh, b)
	}
	return fresh
}
