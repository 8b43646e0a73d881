// Package sse streams watch results to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/provscan/internal/models"
)

// Event types.
const (
	EventTagged = "provenance.tagged"
	EventStats  = "watch.stats"
)

const (
	clientBuffer = 64
	keepAlive    = 15 * time.Second
)

// Event is one message to broadcast. Data is encoded as JSON.
type Event struct {
	Type string
	Data any
}

// Stats summarizes what the watcher has reported since the broker started.
type Stats struct {
	Tagged   int    `json:"tagged"`
	Unknown  int    `json:"unknown"`
	LastPath string `json:"lastPath,omitempty"`
}

// Broker fans events out to subscribers. All subscriber bookkeeping and
// the stats counters belong to the loop goroutine; exported methods talk
// to it over channels.
type Broker struct {
	statsEvery time.Duration

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	results chan models.ScanResult
	count   chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker. A watch.stats event follows a tagged result
// at most once per statsEvery.
func NewBroker(statsEvery time.Duration) *Broker {
	if statsEvery <= 0 {
		statsEvery = 2 * time.Second
	}
	b := &Broker{
		statsEvery: statsEvery,
		join:       make(chan chan []byte),
		leave:      make(chan chan []byte),
		events:     make(chan Event, 256),
		results:    make(chan models.ScanResult, 256),
		count:      make(chan chan int),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go b.loop()
	return b
}

// frame renders one SSE message.
func frame(id uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(payload)+len(ev.Type)+32)
	buf = append(buf, "id: "...)
	buf = strconv.AppendUint(buf, id, 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, ev.Type...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, payload...)
	return append(buf, "\n\n"...), nil
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]struct{})
	var (
		seq       uint64
		stats     Stats
		lastStats time.Time
	)

	send := func(ev Event) {
		seq++
		msg, err := frame(seq, ev)
		if err != nil {
			return
		}
		for ch := range subs {
			select {
			case ch <- msg:
			default: // slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.join:
			subs[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.events:
			send(ev)

		case res := <-b.results:
			stats.Tagged++
			if res.Creator == models.UnknownCreator {
				stats.Unknown++
			}
			stats.LastPath = res.FilePath
			send(Event{Type: EventTagged, Data: res})

			if now := time.Now(); now.Sub(lastStats) >= b.statsEvery {
				lastStats = now
				send(Event{Type: EventStats, Data: stats})
			}

		case reply := <-b.count:
			reply <- len(subs)
		}
	}
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. The channel is closed on Unsubscribe or
// Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// PublishResult broadcasts a provenance.tagged event for res and updates
// the watch statistics. Its signature matches the scanner's emit callback.
func (b *Broker) PublishResult(res models.ScanResult) {
	if b.closed.Load() {
		return
	}
	select {
	case b.results <- res:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes. Idle connections get a comment line every keepAlive.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
		}
		flusher.Flush()
	}
}
