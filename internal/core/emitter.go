package core

import "sync"

// Emitter is the handler table shared by Call implementations. Handlers are
// keyed by id so removal is by identity and never disturbs other
// registrations for the same event.
type Emitter struct {
	mu       sync.RWMutex
	nextID   HandlerID
	handlers map[Event]map[HandlerID]HandlerFunc
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[Event]map[HandlerID]HandlerFunc)}
}

func (e *Emitter) On(ev Event, fn HandlerFunc) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	m, ok := e.handlers[ev]
	if !ok {
		m = make(map[HandlerID]HandlerFunc)
		e.handlers[ev] = m
	}
	m[id] = fn
	return id
}

func (e *Emitter) Off(ev Event, id HandlerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.handlers[ev]; ok {
		delete(m, id)
	}
}

// Emit invokes every handler registered for ev. The table is snapshotted
// under the read lock and handlers run outside it, so a handler may call
// On/Off without deadlocking.
func (e *Emitter) Emit(ev Event, p Payload) {
	e.mu.RLock()
	snapshot := make([]HandlerFunc, 0, len(e.handlers[ev]))
	for _, fn := range e.handlers[ev] {
		snapshot = append(snapshot, fn)
	}
	e.mu.RUnlock()
	for _, fn := range snapshot {
		fn(p)
	}
}
