package subscription

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ID is the subscription identifier handed to clients. It is unique for the process lifetime.
type ID uint64

type entry struct {
	id   ID
	refs int
}

// Registry maps live keys to subscription ids and back. Each live key has exactly one id;
// concurrent registrations of the same key share it and are reference counted.
type Registry struct {
	byKey  *xsync.MapOf[Key, entry]
	byID   *xsync.MapOf[ID, Key]
	nextID atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byKey: xsync.NewMapOf[Key, entry](),
		byID:  xsync.NewMapOf[ID, Key](),
	}
}

// Register returns the id for key, minting one if the key is not live.
func (r *Registry) Register(key Key) ID {
	e, _ := r.byKey.Compute(key, func(cur entry, loaded bool) (entry, bool) {
		if loaded {
			cur.refs++
			return cur, false
		}
		id := ID(r.nextID.Add(1))
		r.byID.Store(id, key)
		return entry{id: id, refs: 1}, false
	})
	promSubscriptionsActive.Set(float64(r.byKey.Size()))
	return e.id
}

// Lookup returns the id currently assigned to key.
func (r *Registry) Lookup(key Key) (ID, bool) {
	e, ok := r.byKey.Load(key)
	return e.id, ok
}

// Key returns the key an id was minted for, if it is still live.
func (r *Registry) Key(id ID) (Key, bool) {
	return r.byID.Load(id)
}

// Release drops one reference to id and unregisters it when none remain.
// It reports whether the id was removed.
func (r *Registry) Release(id ID) bool {
	key, ok := r.byID.Load(id)
	if !ok {
		return false
	}
	var removed bool
	r.byKey.Compute(key, func(cur entry, loaded bool) (entry, bool) {
		if !loaded {
			return cur, true
		}
		if cur.id != id {
			// the key was re-registered under a new id
			return cur, false
		}
		cur.refs--
		if cur.refs > 0 {
			return cur, false
		}
		removed = true
		r.byID.Delete(id)
		return cur, true
	})
	promSubscriptionsActive.Set(float64(r.byKey.Size()))
	return removed
}

// Unregister removes id regardless of how many references it has.
// Unknown ids are ignored.
func (r *Registry) Unregister(id ID) {
	key, ok := r.byID.LoadAndDelete(id)
	if !ok {
		return
	}
	r.byKey.Compute(key, func(cur entry, loaded bool) (entry, bool) {
		return cur, !loaded || cur.id == id
	})
	promSubscriptionsActive.Set(float64(r.byKey.Size()))
}

// Len is the number of live keys.
func (r *Registry) Len() int {
	return r.byKey.Size()
}
