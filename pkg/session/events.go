package session

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
)

// EventType names an event. Collaborators may emit their own types.
type EventType string

const (
	EventAdd         EventType = "add"
	EventRemove      EventType = "remove"
	EventPosition    EventType = "position"
	EventLayoutStart EventType = "layoutstart"
	EventLayoutStop  EventType = "layoutstop"
	EventTap         EventType = "tap"
)

// Event is a notification dispatched to listeners.
type Event struct {
	Type EventType
	// Kind is set for element events and empty for session events.
	Kind graph.Kind
	// ID is the element id for element events and the run id for layout
	// events.
	ID    string
	Attrs graph.Attributes
	Data  map[string]any
}

// Handler receives events. Handlers run on the goroutine that caused the
// event, after the session lock is released, so they may call back into
// the session.
type Handler func(Event)

type listener struct {
	id  uint64
	typ EventType
	sel graph.Selector
	fn  Handler
}

func (l *listener) matches(ev Event) bool {
	if l.typ != ev.Type {
		return false
	}
	if l.sel.Group != "" && l.sel.Group != ev.Kind {
		return false
	}
	return l.sel.Match(ev.ID, ev.Attrs)
}

// bus fans events out to listeners. It has its own lock so handlers can
// subscribe and unsubscribe while being dispatched to.
type bus struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]*listener
	watchers  map[*Watcher]struct{}
}

func newBus() *bus {
	return &bus{listeners: make(map[uint64]*listener), watchers: make(map[*Watcher]struct{})}
}

func (b *bus) subscribe(typ EventType, sel graph.Selector, fn Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.listeners[b.next] = &listener{id: b.next, typ: typ, sel: sel, fn: fn}
	return b.next
}

func (b *bus) unsubscribe(id uint64) {
	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
}

// dispatch delivers events in order. Listeners added during dispatch see
// only later events.
func (b *bus) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	ls := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.mu.RUnlock()
	slices.SortFunc(ls, func(a, b *listener) int { return cmp.Compare(a.id, b.id) })

	for _, ev := range events {
		for _, l := range ls {
			if !l.matches(ev) {
				continue
			}
			b.mu.RLock()
			_, live := b.listeners[l.id]
			b.mu.RUnlock()
			if live {
				l.fn(ev)
			}
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	ws := b.watchers
	b.watchers = make(map[*Watcher]struct{})
	clear(b.listeners)
	b.mu.Unlock()
	for w := range ws {
		w.close()
	}
}

// Subscription is a persistent listener registration.
type Subscription struct {
	bus  *bus
	id   uint64
	once sync.Once
}

// Unsubscribe removes the listener. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id) })
}

// =============================================================================
// Watcher
// =============================================================================

// Watcher completes on the first event matching its type and selector.
// The event is handed to exactly one call of Wait.
type Watcher struct {
	bus *bus
	id  uint64

	mu       sync.Mutex
	fired    bool
	isClosed bool
	ch       chan Event
	done     chan struct{}
	closed   chan struct{}
}

func newWatcher(b *bus, typ EventType, sel graph.Selector) *Watcher {
	w := &Watcher{
		bus:    b,
		ch:     make(chan Event, 1),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.next++
	w.id = b.next
	b.listeners[w.id] = &listener{id: w.id, typ: typ, sel: sel, fn: w.fire}
	b.watchers[w] = struct{}{}
	b.mu.Unlock()
	return w
}

func (w *Watcher) fire(ev Event) {
	w.mu.Lock()
	if w.fired || w.isClosed {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.ch <- ev
	close(w.done)
	w.mu.Unlock()
	w.detach()
}

func (w *Watcher) detach() {
	w.bus.mu.Lock()
	delete(w.bus.listeners, w.id)
	delete(w.bus.watchers, w)
	w.bus.mu.Unlock()
}

// Wait blocks until the watcher fires and returns the event. Only the
// first caller to receive it gets the event; other callers keep waiting
// until their context ends. Wait fails if the watcher is cancelled or its
// session closes before firing.
func (w *Watcher) Wait(ctx context.Context) (Event, error) {
	select {
	case ev := <-w.ch:
		return ev, nil
	case <-w.closed:
		return Event{}, errors.New(errors.ErrCodeCancelled, "watcher closed before firing")
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Done is closed when the watcher fires.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Fired reports whether a matching event has arrived.
func (w *Watcher) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Cancel stops waiting for events. Pending Wait calls fail unless the
// watcher already fired.
func (w *Watcher) Cancel() {
	w.detach()
	w.close()
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.fired && !w.isClosed {
		w.isClosed = true
		close(w.closed)
	}
}
