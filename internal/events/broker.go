// Package events delivers render events to the interested parties: server
// sent event clients through the Broker, a Redis list and the log.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

const DefaultBuffer = 256

// Broker fans events out to subscribers. Notify never blocks: a subscriber
// which does not keep up loses events and gets them counted in Dropped.
type Broker struct {
	buffer int

	mx     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

type Subscription struct {
	events  chan model.Event
	dropped atomic.Int64
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan model.Event {
	return s.events
}

func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber; call the returned function to
// unsubscribe.
func (b *Broker) Subscribe() (*Subscription, func()) {
	s := &Subscription{events: make(chan model.Event, b.buffer)}

	b.mx.Lock()
	defer b.mx.Unlock()
	if b.closed {
		close(s.events)
		return s, func() {}
	}
	b.subs[s] = struct{}{}

	var once sync.Once
	return s, func() {
		once.Do(func() { b.remove(s) })
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.events)
	}
}

func (b *Broker) Subscribers() int {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return len(b.subs)
}

func (b *Broker) Notify(ctx context.Context, e model.Event) error {
	b.mx.RLock()
	defer b.mx.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		select {
		case s.events <- e:
		default:
			if s.dropped.Add(1) == 1 {
				slog.WarnContext(ctx, "slow event subscriber: dropping events", "event", e.Type)
			}
		}
	}
	return nil
}

// Close ends all subscriptions.
func (b *Broker) Close() {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.events)
		delete(b.subs, s)
	}
}

var ErrClosed = errors.New("broker closed")
