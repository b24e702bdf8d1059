// Package distributor fans annotation changes out to local render
// surfaces. The main session window and the click-through overlay both
// draw the same strokes; the distributor delivers each change to every
// surface asynchronously so a slow surface never stalls input capture
// or the network path.
package distributor

import (
	"log"
	"sync"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// Channel moves protocol messages between annotation endpoints. The
// session layer treats the in-process loopback, the websocket relay,
// and a WebRTC data channel identically through this interface.
type Channel interface {
	// Publish sends a message to every other endpoint on the channel.
	Publish(protocol.Message) error
	// Subscribe registers a handler for inbound messages. Handlers run
	// on the channel's delivery goroutine.
	Subscribe(func(protocol.Message))
	// Close tears the channel down; Publish fails afterwards.
	Close() error
}

// ChangeEvent is one applied store change headed for a render surface.
// Seq increases per publisher so surfaces can spot duplicate delivery.
type ChangeEvent struct {
	Seq      uint64
	StrokeID string
	Message  protocol.Message
}

const subscriberBuffer = 64

// Distributor delivers ChangeEvents to any number of surfaces. Each
// subscriber gets its own buffered channel; Publish never blocks, and
// a surface that falls more than a buffer behind loses events (it can
// repaint from a store snapshot).
type Distributor struct {
	mu     sync.Mutex
	subs   map[int]chan ChangeEvent
	nextID int
	seen   map[string]uint64 // strokeID -> last delivered seq
	closed bool
}

// New returns an empty distributor.
func New() *Distributor {
	return &Distributor{
		subs: make(map[int]chan ChangeEvent),
		seen: make(map[string]uint64),
	}
}

// Subscribe registers a new surface. The returned cancel func removes
// the subscription and closes its channel.
func (d *Distributor) Subscribe() (<-chan ChangeEvent, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	ch := make(chan ChangeEvent, subscriberBuffer)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	d.subs[id] = ch
	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every surface. Redelivery of an event
// already seen for its stroke (same seq) is suppressed; a different
// seq always goes through and becomes the new latest, so when two
// writers race on a stroke the last arrival wins on every surface.
func (d *Distributor) Publish(ev ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if ev.StrokeID != "" {
		if last, ok := d.seen[ev.StrokeID]; ok && last == ev.Seq {
			return
		}
		d.seen[ev.StrokeID] = ev.Seq
	}
	for id, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("Distributor: surface %d is behind, dropping event seq %d", id, ev.Seq)
		}
	}
}

// Forget drops dedupe state for a stroke. Call after the stroke is
// deleted so the map does not grow for the whole session.
func (d *Distributor) Forget(strokeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, strokeID)
}

// Close closes every subscriber channel.
func (d *Distributor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
