// Package dispatch is a small named-event dispatcher that decouples event
// producers from the components that react to them.
package dispatch

import (
	"fmt"
	"sync"
)

// Handler reacts to one event.
type Handler[E any] func(E)

type entry[E any] struct {
	id int
	h  Handler[E]
}

// Dispatcher fans an event out to the handlers registered for its name, in
// registration order. A panicking handler is recovered and reported through
// the panic hook; the remaining handlers still run.
type Dispatcher[E any] struct {
	mu       sync.RWMutex
	handlers map[string][]entry[E]
	nextID   int
	onPanic  func(name string, err error)
}

// New creates a dispatcher. onPanic may be nil.
func New[E any](onPanic func(name string, err error)) *Dispatcher[E] {
	return &Dispatcher[E]{handlers: make(map[string][]entry[E]), onPanic: onPanic}
}

// On registers h for name and returns a func that removes it. Calling the
// remove func more than once is harmless.
func (d *Dispatcher[E]) On(name string, h Handler[E]) (remove func()) {
	if h == nil {
		return func() {}
	}
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.handlers[name] = append(d.handlers[name], entry[E]{id: id, h: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.off(name, id) })
	}
}

func (d *Dispatcher[E]) off(name string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[name]
	for i, e := range list {
		if e.id == id {
			next := make([]entry[E], 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, name)
			} else {
				d.handlers[name] = next
			}
			return
		}
	}
}

// Emit delivers e to every handler registered for name and returns how many
// handlers ran. Handlers are invoked without the dispatcher lock held, so
// they may register or remove handlers themselves.
func (d *Dispatcher[E]) Emit(name string, e E) int {
	d.mu.RLock()
	list := d.handlers[name]
	d.mu.RUnlock()

	for _, en := range list {
		d.call(name, en.h, e)
	}
	return len(list)
}

func (d *Dispatcher[E]) call(name string, h Handler[E], e E) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(name, fmt.Errorf("handler panic: %v", r))
		}
	}()
	h(e)
}

// Len reports how many handlers are registered for name.
func (d *Dispatcher[E]) Len(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[name])
}
