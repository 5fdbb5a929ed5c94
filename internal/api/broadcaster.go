package api

import (
	"sync"

	"github.com/nikunjy/pgoutputd/pgoutput"
)

// Broadcaster fans a single stream of decoded Frames out to many
// subscribers (websocket and SSE clients). It generalizes the teacher's
// single `Out chan types.Wal2JSONEvent` to support more than one reader
// without the producer ever blocking on a slow consumer.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan pgoutput.Frame
	nextID      int
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]chan pgoutput.Frame)}
}

// Subscribe registers a new subscriber and returns its channel along with
// an unsubscribe function the caller must call when done.
func (b *Broadcaster) Subscribe(buffer int) (<-chan pgoutput.Frame, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan pgoutput.Frame, buffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers frame to every current subscriber. A subscriber whose
// buffer is full has the frame dropped for it rather than blocking the
// whole decode loop — slow consumers fall behind instead of stalling
// everyone else.
func (b *Broadcaster) Publish(frame pgoutput.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close closes every subscriber channel, signalling end-of-stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
