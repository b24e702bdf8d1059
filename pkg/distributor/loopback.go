package distributor

import (
	"errors"
	"sync"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// ErrChannelClosed is returned by Publish on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// Loopback is an in-process Channel. It backs single-machine sessions
// and tests: messages published on one side show up on every
// subscriber, delivered from a dedicated goroutine per subscriber so
// handlers never run on the publisher's stack.
type Loopback struct {
	mu     sync.Mutex
	subs   []chan protocol.Message
	wg     sync.WaitGroup
	closed bool
}

// NewLoopback returns an open loopback channel.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Publish sends the message to every subscriber without blocking. A
// subscriber that is a full buffer behind loses the message.
func (l *Loopback) Publish(msg protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrChannelClosed
	}
	for _, ch := range l.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler. Delivery order is preserved per
// subscriber.
func (l *Loopback) Subscribe(handler func(protocol.Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	ch := make(chan protocol.Message, subscriberBuffer)
	l.subs = append(l.subs, ch)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for msg := range ch {
			handler(msg)
		}
	}()
}

// Close stops delivery and waits for in-flight handlers to return.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, ch := range l.subs {
		close(ch)
	}
	l.subs = nil
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}
