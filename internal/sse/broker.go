// Package sse streams note changes to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
)

// Event names written on the stream.
const (
	EventNoteInserted = "note.inserted"
	EventNoteDeleted  = "note.deleted"
	EventSyncDone     = "sync.done"
	EventStatsUpdated = "stats.updated"
)

// clientBuffer is how many frames a slow client may lag before frames are
// dropped for it.
const clientBuffer = 64

type insertedData struct {
	RowID int64  `json:"rowid"`
	UUID4 string `json:"uuid4"`
	Title string `json:"title"`
}

type deletedData struct {
	RowID int64 `json:"rowid"`
}

type syncedData struct {
	URI string `json:"uri"`
}

// Broker fans note events out to subscribed streams.
type Broker struct {
	statsMin time.Duration

	mu        sync.Mutex
	clients   map[chan []byte]struct{}
	lastStats time.Time
	closed    bool
}

// NewBroker creates a Broker. statsThrottle is the minimum gap between two
// stats.updated frames.
func NewBroker(statsThrottle time.Duration) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}
	return &Broker{
		statsMin: statsThrottle,
		clients:  make(map[chan []byte]struct{}),
	}
}

// Subscribe registers a stream. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.clients[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ClientCount returns the number of open streams.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close ends every stream. Later publishes are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		close(ch)
	}
	clear(b.clients)
}

// PublishNoteEvent writes the frame for a note change, followed by a
// stats.updated frame at most once per throttle window. It never blocks and
// its signature matches notes.EventCallback.
func (b *Broker) PublishNoteEvent(kind string, n models.Note) {
	var (
		name string
		data any
	)
	switch kind {
	case notes.EventInserted:
		name, data = EventNoteInserted, insertedData{RowID: n.RowID, UUID4: n.UUID4, Title: n.Title}
	case notes.EventDeleted:
		name, data = EventNoteDeleted, deletedData{RowID: n.RowID}
	case notes.EventSynced:
		name, data = EventSyncDone, syncedData{URI: n.URL}
	default:
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.broadcast(name, data)
	if now := time.Now(); now.Sub(b.lastStats) >= b.statsMin {
		b.lastStats = now
		b.broadcast(EventStatsUpdated, struct{}{})
	}
}

// broadcast requires b.mu.
func (b *Broker) broadcast(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame := []byte("event: " + name + "\ndata: " + string(payload) + "\n\n")
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// ServeHTTP streams events until the client disconnects (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
