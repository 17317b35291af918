// Package forcing maps simulation instances to externally supplied
// force handlers. A model reads its instance id during initialization
// and asks the registry for the force acting on it at each time it
// integrates over; callers bind handlers before or while the
// simulation runs.
package forcing

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/fmukit/fmukit/internal/core/physics"
)

// InstanceID identifies the model instance a handler is bound to. It
// is the value a model exposes through its instanceID parameter.
type InstanceID int32

// Handler computes the force acting on an instance at simulation time
// t. Handlers must be safe for concurrent calls and should not block:
// they run on the stepping goroutine of whichever instance asks.
type Handler func(t float64) physics.Vec2

const defaultShardCount = 16

// Registry is a thread-safe InstanceID to Handler table. Bindings are
// sharded by id hash so concurrent registration and dispatch for
// different instances do not contend.
type Registry struct {
	shards    []registryShard
	shardMask uint64
}

type registryShard struct {
	mu       sync.RWMutex
	handlers map[InstanceID]Handler
}

// NewRegistry returns an empty registry with the default shard count.
func NewRegistry() *Registry {
	return NewShardedRegistry(defaultShardCount)
}

// NewShardedRegistry returns an empty registry with at least shardCount
// shards, rounded up to a power of two.
func NewShardedRegistry(shardCount int) *Registry {
	if shardCount < 1 {
		shardCount = 1
	}
	if shardCount&(shardCount-1) != 0 {
		shardCount = nextPowerOfTwo(shardCount)
	}

	shards := make([]registryShard, shardCount)
	for i := range shards {
		shards[i].handlers = make(map[InstanceID]Handler)
	}

	return &Registry{
		shards:    shards,
		shardMask: uint64(shardCount - 1),
	}
}

// Register binds h to id, replacing any previous binding. A nil
// handler clears the binding.
func (r *Registry) Register(id InstanceID, h Handler) {
	sd := r.shard(id)
	sd.mu.Lock()
	if h == nil {
		delete(sd.handlers, id)
	} else {
		sd.handlers[id] = h
	}
	sd.mu.Unlock()
}

// Unregister removes the binding for id, if any.
func (r *Registry) Unregister(id InstanceID) {
	sd := r.shard(id)
	sd.mu.Lock()
	delete(sd.handlers, id)
	sd.mu.Unlock()
}

// Force returns the force for id at time t. Instances with no handler
// experience zero force. The shard lock is released before the handler
// runs, so a slow handler only costs its own caller.
func (r *Registry) Force(id InstanceID, t float64) physics.Vec2 {
	sd := r.shard(id)
	sd.mu.RLock()
	h := sd.handlers[id]
	sd.mu.RUnlock()

	if h == nil {
		return physics.Vec2{}
	}
	return h(t)
}

// ForceInto writes the force for id at time t into out. Allocation-free
// variant of Force for tight stepping loops.
func (r *Registry) ForceInto(id InstanceID, t float64, out *physics.Vec2) {
	*out = r.Force(id, t)
}

// Handles reports whether a handler is bound to id.
func (r *Registry) Handles(id InstanceID) bool {
	sd := r.shard(id)
	sd.mu.RLock()
	_, ok := sd.handlers[id]
	sd.mu.RUnlock()
	return ok
}

// Len returns the number of bound instances.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sd := &r.shards[i]
		sd.mu.RLock()
		n += len(sd.handlers)
		sd.mu.RUnlock()
	}
	return n
}

// IDs returns a snapshot of the bound instance ids, in no particular
// order.
func (r *Registry) IDs() []InstanceID {
	ids := make([]InstanceID, 0, r.Len())
	for i := range r.shards {
		sd := &r.shards[i]
		sd.mu.RLock()
		for id := range sd.handlers {
			ids = append(ids, id)
		}
		sd.mu.RUnlock()
	}
	return ids
}

// Reset drops every binding.
func (r *Registry) Reset() {
	for i := range r.shards {
		sd := &r.shards[i]
		sd.mu.Lock()
		sd.handlers = make(map[InstanceID]Handler)
		sd.mu.Unlock()
	}
}

func (r *Registry) shard(id InstanceID) *registryShard {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], uint32(id))
	return &r.shards[xxhash.Sum64(key[:])&r.shardMask]
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
