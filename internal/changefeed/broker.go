package changefeed

import (
	"log"
	"sync"
	"sync/atomic"
)

const DefaultBuffer = 256

// Publisher is what the write path needs.
type Publisher interface {
	Publish(ev Event)
}

// Subscriber is what mirrors of the store need.
type Subscriber interface {
	Subscribe(tables ...Table) *Subscription
}

// Broker fans events out to subscriptions. Publish never blocks: when a
// subscription's buffer is full the event is dropped for it and the
// subscription is marked as lagging.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

type Subscription struct {
	broker  *Broker
	tables  map[Table]struct{}
	ch      chan Event
	dropped atomic.Int64
	once    sync.Once
}

// Subscribe with no tables watches every table.
func (b *Broker) Subscribe(tables ...Table) *Subscription {
	s := &Subscription{
		broker: b,
		tables: make(map[Table]struct{}, len(tables)),
		ch:     make(chan Event, b.buffer),
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.watches(ev.Table) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			n := s.dropped.Add(1)
			log.Printf("[WARN] changefeed: subscriber lagging, dropped %s %s (%d total)", ev.Table, ev.Type, n)
		}
	}
}

// Close ends every subscription. Later Publish calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.once.Do(func() { close(s.ch) })
		delete(b.subs, s)
	}
}

func (s *Subscription) watches(t Table) bool {
	if len(s.tables) == 0 {
		return true
	}
	_, ok := s.tables[t]
	return ok
}

// C delivers events in publish order. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// TakeDropped returns and resets the number of events lost to a full buffer.
func (s *Subscription) TakeDropped() int64 { return s.dropped.Swap(0) }

func (s *Subscription) Close() {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
	}
	s.once.Do(func() { close(s.ch) })
}
