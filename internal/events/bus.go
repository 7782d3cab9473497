// Package events delivers service state changes to interested listeners.
//
// The Bus fans every event out synchronously, on the goroutine of the
// service that changed state, to a copy-on-write list of listeners. A
// listener that panics is logged and skipped; it never aborts the
// transition that produced the event.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Listener observes every state change of every service.
type Listener interface {
	OnTransition(ev domain.Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ev domain.Event)

// OnTransition calls f(ev).
func (f ListenerFunc) OnTransition(ev domain.Event) { f(ev) }

type entry struct {
	id       uint64
	listener Listener
}

// Bus is the global state-change event bus.
type Bus struct {
	mu        sync.Mutex // serializes writers of listeners
	listeners atomic.Pointer[[]entry]
	nextID    uint64
	logger    log.Logger
	panics    atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNoop()
	}
	b := &Bus{logger: logger}
	empty := []entry{}
	b.listeners.Store(&empty)
	return b
}

// Subscribe registers l and returns a function that removes it. It is safe
// to call from inside a listener; the change applies to later events.
func (b *Bus) Subscribe(l Listener) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	cur := *b.listeners.Load()
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry{id: id, listener: l})
	b.listeners.Store(&next)
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { b.remove(id) }) }
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.listeners.Load()
	next := make([]entry, 0, len(cur))
	for _, e := range cur {
		if e.id != id {
			next = append(next, e)
		}
	}
	b.listeners.Store(&next)
}

// Publish delivers ev to every registered listener in registration order.
func (b *Bus) Publish(ev domain.Event) {
	for _, e := range *b.listeners.Load() {
		b.deliver(e.listener, ev)
	}
}

func (b *Bus) deliver(l Listener, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("listener-panic",
				log.Service(ev.Service),
				log.String("from", ev.Old.String()),
				log.String("to", ev.New.String()),
				log.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	l.OnTransition(ev)
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	return len(*b.listeners.Load())
}

// Panics returns how many listener panics were recovered.
func (b *Bus) Panics() uint64 {
	return b.panics.Load()
}
