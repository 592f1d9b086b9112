package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/omegapoint/pipeline/internal/pipeline/engine"
)

// Broadcaster fans out engine progress events to multiple SSE clients. One
// Broadcaster per session. Thread-safe.
type Broadcaster struct {
	mu      sync.Mutex
	history []engine.Progress
	clients map[uint64]chan engine.Progress
	nextID  uint64
	closed  bool
	doneCh  chan struct{} // closed only on Close(), not on slow-client drops
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[uint64]chan engine.Progress),
		doneCh:  make(chan struct{}),
	}
}

// Send fans one progress event out to every subscriber. It is the engine's
// OnProgress callback and must not block.
func (b *Broadcaster) Send(ev engine.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, ev)
	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			// Slow client: drop to keep the engine from blocking.
			close(ch)
			delete(b.clients, id)
		}
	}
}

// Subscribe returns an events channel, a done channel and an unsubscribe
// function. The events channel replays the full history before live events.
// The done channel closes only when the broadcaster closes, which lets a
// client distinguish shutdown from being dropped for slowness.
func (b *Broadcaster) Subscribe() (<-chan engine.Progress, <-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan engine.Progress, len(b.history)+256)
	id := b.nextID
	b.nextID++

	// Sized to fit the whole history plus live headroom, so the replay
	// never blocks while holding the mutex.
	for _, ev := range b.history {
		ch <- ev
	}

	if b.closed {
		close(ch)
		return ch, b.doneCh, func() {}
	}

	b.clients[id] = ch
	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.clients[id]; ok {
			delete(b.clients, id)
			close(ch)
		}
	}
	return ch, b.doneCh, unsub
}

// Close signals that no more events will be sent and closes every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.doneCh)
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// History returns a copy of all events received so far.
func (b *Broadcaster) History() []engine.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]engine.Progress, len(b.history))
	copy(out, b.history)
	return out
}

// WriteSSE streams events from a Broadcaster as Server-Sent Events.
func WriteSSE(w http.ResponseWriter, r *http.Request, b *Broadcaster) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx proxy compatibility
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, doneCh, unsub := b.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Only emit "done" when the broadcaster actually closed,
				// not when this client was dropped for slowness.
				select {
				case <-doneCh:
					fmt.Fprintf(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
				default:
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
