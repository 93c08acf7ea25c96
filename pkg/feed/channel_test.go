package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theblob/pkg/domain"
)

// fakeConn is an in-memory live channel connection
type fakeConn struct {
	incoming chan Event

	mu     sync.Mutex
	sent   []Event
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan Event, 16)}
}

func (f *fakeConn) ReadJSON(v interface{}) error {
	ev, ok := <-f.incoming
	if !ok {
		return fmt.Errorf("connection closed")
	}
	*(v.(*Event)) = ev
	return nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("write on closed connection")
	}
	f.sent = append(f.sent, v.(Event))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestChannel_PrependsPushedBlobs(t *testing.T) {
	conn := newFakeConn()
	state := NewState()
	state.Append([]domain.Blob{{ID: 5}})
	ch := NewChannel(conn, state, time.Hour)

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()

	conn.incoming <- Event{Event: EventStatus}
	conn.incoming <- Event{Event: EventNewBlobs, Blobs: []domain.Blob{{ID: 7}, {ID: 6}}}

	require.Eventually(t, func() bool { return state.Len() == 3 }, testWait, testTick)
	assert.Equal(t, []int64{7, 6, 5}, blobIDs(state.Blobs()))

	conn.Close()
	err := <-done
	require.Error(t, err, "broken connection surfaces as error")
}

func TestChannel_EmptyUpdateIsNoOp(t *testing.T) {
	conn := newFakeConn()
	state := NewState()
	state.Append([]domain.Blob{{ID: 5}})
	ch := NewChannel(conn, state, time.Hour)

	go func() { _ = ch.Run(context.Background()) }()

	conn.incoming <- Event{Event: EventNewBlobs}
	conn.incoming <- Event{Event: EventNewBlobs, Blobs: []domain.Blob{}}

	// feed unchanged after empty updates
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{5}, blobIDs(state.Blobs()))

	conn.Close()
}

func TestChannel_DuplicatePushDropped(t *testing.T) {
	conn := newFakeConn()
	state := NewState()
	state.Append([]domain.Blob{{ID: 5}})
	ch := NewChannel(conn, state, time.Hour)

	go func() { _ = ch.Run(context.Background()) }()

	conn.incoming <- Event{Event: EventNewBlobs, Blobs: []domain.Blob{{ID: 6}, {ID: 5}}}

	require.Eventually(t, func() bool { return state.Len() == 2 }, testWait, testTick)
	assert.Equal(t, []int64{6, 5}, blobIDs(state.Blobs()))

	conn.Close()
}

func TestChannel_PeriodicUpdateRequests(t *testing.T) {
	conn := newFakeConn()
	ch := NewChannel(conn, NewState(), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ch.Run(ctx) }()

	// several ticks worth of request_update messages go out
	require.Eventually(t, func() bool { return conn.sentCount() >= 3 }, testWait, testTick)

	conn.mu.Lock()
	for _, ev := range conn.sent {
		assert.Equal(t, EventRequestUpdate, ev.Event)
	}
	conn.mu.Unlock()

	cancel()

	// ticker stops after shutdown
	require.Eventually(t, func() bool {
		before := conn.sentCount()
		time.Sleep(60 * time.Millisecond)
		return conn.sentCount() == before
	}, testWait, testTick)
}

func TestChannel_ContextCancelStopsRun(t *testing.T) {
	conn := newFakeConn()
	ch := NewChannel(conn, NewState(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	cancel()
	// cancel tears down the connection, unblocking the read loop
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	}, testWait, testTick)

	select {
	case err := <-done:
		assert.NoError(t, err, "canceled run returns clean")
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
