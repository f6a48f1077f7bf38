package core

import (
	"sync"
	"time"

	"github.com/vovakirdan/focusrelay/internal/utils"
)

// Sink delivers serialized payloads to one live connection. Implementations
// must not block; a full queue is reported as ErrSendBufferFull.
type Sink interface {
	Send(payload []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(payload []byte) error

func (f SinkFunc) Send(payload []byte) error {
	return f(payload)
}

type connection struct {
	binding Binding
	sink    Sink
}

// Registry maps live connections to their sinks and declared identities.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*connection
	now   func() time.Time
}

// NewRegistry creates an empty registry. A nil clock means time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		conns: make(map[ConnID]*connection),
		now:   now,
	}
}

// Open allocates a fresh connection identity for sink.
func (r *Registry) Open(sink Sink) ConnID {
	id := ConnID(utils.NewID())

	r.mu.Lock()
	r.conns[id] = &connection{
		binding: Binding{ConnID: id, OpenedAt: r.now()},
		sink:    sink,
	}
	r.mu.Unlock()
	return id
}

// Bind attaches identity to an open connection, replacing any earlier binding.
func (r *Registry) Bind(id ConnID, identity Identity) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Binding{}, ErrNotFound
	}
	c.binding.Identity = identity
	c.binding.Bound = true
	return c.binding, nil
}

// SetRoom records the room the connection is joined to ("" for none).
func (r *Registry) SetRoom(id ConnID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return ErrNotFound
	}
	c.binding.RoomID = roomID
	return nil
}

// Close removes the connection and returns its last binding. The second
// close of the same id reports false.
func (r *Registry) Close(id ConnID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	delete(r.conns, id)
	return c.binding, true
}

// Resolve returns the current binding of an open connection.
func (r *Registry) Resolve(id ConnID) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Binding{}, ErrNotFound
	}
	return c.binding, nil
}

// Send delivers payload to a single connection.
func (r *Registry) Send(id ConnID, payload []byte) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}
	return c.sink.Send(payload)
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
