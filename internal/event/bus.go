// Package event provides the publish/subscribe channel sessions use to report
// ticks, completions and failures.
package event

import (
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus fans events out to subscribers. Publish never blocks: an event is
// dropped for a subscriber whose channel is full.
type Bus struct {
	source string
	mu     sync.RWMutex
	subs   map[int]chan types.Event
	nextID int
	now    func() time.Time
}

// NewBus creates a bus whose events carry the given source name.
func NewBus(source string) *Bus {
	return &Bus{
		source: source,
		subs:   make(map[int]chan types.Event),
		now:    time.Now,
	}
}

// Subscribe returns a channel of events and a function that ends the subscription.
func (b *Bus) Subscribe() (<-chan types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan types.Event, DefaultBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish stamps ev with the bus source and time and delivers it.
func (b *Bus) Publish(ev types.Event) {
	ev.Source = b.source
	if ev.Time.IsZero() {
		ev.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
