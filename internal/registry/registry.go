// Package registry tracks per-connection server resources by numeric id.
//
// Ids are random, nonzero and unique among live entries. An id is only
// meaningful to the connection that created it: looking it up from another
// connection is a protocol violation, not a miss.
package registry

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/LuKks/protobee/internal/core/domain"
)

// ID identifies a registered resource. Zero is never issued.
type ID uint32

type entry[C comparable, V any] struct {
	owner C
	value V
}

// Registry maps ids to values owned by a connection of type C.
type Registry[C comparable, V any] struct {
	mu      sync.Mutex
	entries map[ID]entry[C, V]
	owners  map[C][]ID
}

// New creates an empty registry.
func New[C comparable, V any]() *Registry[C, V] {
	return &Registry[C, V]{
		entries: make(map[ID]entry[C, V]),
		owners:  make(map[C][]ID),
	}
}

// Add registers v under owner and returns its fresh id.
func (r *Registry[C, V]) Add(owner C, v V) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.freeIDLocked()
	r.entries[id] = entry[C, V]{owner: owner, value: v}
	r.owners[owner] = append(r.owners[owner], id)
	return id
}

func (r *Registry[C, V]) freeIDLocked() ID {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("registry: crypto/rand failed: " + err.Error())
		}
		id := ID(binary.BigEndian.Uint32(b[:]))
		if id == 0 {
			continue
		}
		if _, used := r.entries[id]; !used {
			return id
		}
	}
}

// Get returns the value registered under id.
// It fails with domain.ErrNotFound for unknown ids and
// domain.ErrProtocolViolation when id belongs to another owner.
func (r *Registry[C, V]) Get(owner C, id ID) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookupLocked(owner, id)
	return e.value, err
}

// Delete unregisters id and hands its value back to the caller.
// Ownership is checked like Get.
func (r *Registry[C, V]) Delete(owner C, id ID) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookupLocked(owner, id)
	if err != nil {
		return e.value, err
	}
	delete(r.entries, id)

	ids := r.owners[owner]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.owners, owner)
	} else {
		r.owners[owner] = ids
	}
	return e.value, nil
}

func (r *Registry[C, V]) lookupLocked(owner C, id ID) (entry[C, V], error) {
	e, ok := r.entries[id]
	if !ok {
		return e, domain.ErrNotFound
	}
	if e.owner != owner {
		var zero entry[C, V]
		return zero, domain.ErrProtocolViolation
	}
	return e, nil
}

// DrainOne removes and returns the oldest entry of owner.
// ok is false once the owner has nothing left.
func (r *Registry[C, V]) DrainOne(owner C) (v V, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.owners[owner]
	if len(ids) == 0 {
		return v, false
	}
	id := ids[0]
	if len(ids) == 1 {
		delete(r.owners, owner)
	} else {
		r.owners[owner] = ids[1:]
	}

	e := r.entries[id]
	delete(r.entries, id)
	return e.value, true
}

// Len returns the number of live entries across all owners.
func (r *Registry[C, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Owned returns the number of live entries of owner.
func (r *Registry[C, V]) Owned(owner C) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners[owner])
}
