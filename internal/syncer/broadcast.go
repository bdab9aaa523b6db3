package syncer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event is published after every finished refresh.
type Event struct {
	UserID   string    `json:"user_id"`
	Inserted int       `json:"inserted"`
	At       time.Time `json:"at"`
}

type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

func (b *Broadcaster) Subscribe() (id int, ch <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.next
	b.next++

	c := make(chan Event, 8)
	b.subs[id] = c

	return id, c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c2, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c2)
		}
	}
}

// Publish never blocks; slow subscribers miss events.
func (b *Broadcaster) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func SSEHandler(b *Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		_, ch, unsubscribe := b.Subscribe()
		defer unsubscribe()

		// initial ping
		_, _ = w.Write([]byte("event: ping\ndata: {}\n\n"))
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				_, _ = fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
