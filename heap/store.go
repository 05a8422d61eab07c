package heap

import (
	"fmt"
	"sync"

	"compost/gc"
)

// Store is an in-memory heap of container objects. It owns the true
// reference counts and the single mutation domain: every public method
// locks the store, and everything the collector calls back into
// (Trace, Clear, finalizers, deallocation cascades) runs inside that
// lock. Objects whose reference count reaches zero outside a collection
// are freed immediately; cyclic garbage is left to the collector.
type Store struct {
	mu        sync.Mutex
	collector *gc.Collector
	objects   map[ObjID]*Object
	nextID    ObjID
	alive     int
}

// NewStore creates a store with a default collector.
func NewStore() *Store {
	return NewStoreWith(gc.New())
}

// NewStoreWith creates a store using c for cycle collection. The
// collector must not be shared with another store; it relies on the
// store's lock for the stop-the-world guarantee.
func NewStoreWith(c *gc.Collector) *Store {
	return &Store{
		collector: c,
		objects:   make(map[ObjID]*Object),
	}
}

// NewObject allocates an empty object with a reference count of one
// (the caller's reference) and registers it with the collector. If a
// generation threshold has been crossed this call runs a collection
// before returning.
func (s *Store) NewObject() (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocate()
}

// Retain adds a reference to o.
func (s *Store) Retain(o *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	s.retain(o)
	return nil
}

// Release drops a reference to o, freeing it (and anything it alone
// kept alive) if the count reaches zero.
func (s *Store) Release(o *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	s.release(o)
	return nil
}

// SetField points o's named field at target, retaining target and
// releasing whatever the field referenced before. A nil target removes
// the field.
func (s *Store) SetField(o *Object, name string, target *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	if target != nil {
		if err := s.check(target); err != nil {
			return err
		}
	}
	s.setField(o, name, target)
	return nil
}

// Append adds target to o's element list, retaining it.
func (s *Store) Append(o *Object, target *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	if err := s.check(target); err != nil {
		return err
	}
	s.append(o, target)
	return nil
}

// SetFinalizer installs fn to run if the collector is about to reclaim
// o. A nil fn removes any installed finalizer.
func (s *Store) SetFinalizer(o *Object, fn Finalizer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	o.finalizer = fn
	return nil
}

// MarkUnclearable makes o refuse Clear, so the collector parks it on
// the uncollectable list instead of reclaiming it.
func (s *Store) MarkUnclearable(o *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(o); err != nil {
		return err
	}
	o.unclearable = true
	return nil
}

// Collect forces a full collection and returns its result.
func (s *Store) Collect() (gc.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.Collect()
}

// CollectGeneration forces a collection of generation gen and all
// younger generations.
func (s *Store) CollectGeneration(gen int) (gc.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.CollectGeneration(gen)
}

// Freeze moves every tracked object into the collector's permanent
// partition, excluding it from future collections.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector.Freeze()
}

// Unfreeze makes frozen objects collectible again.
func (s *Store) Unfreeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector.Unfreeze()
}

// EnableGC allows allocation-triggered collection.
func (s *Store) EnableGC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector.Enable()
}

// DisableGC suppresses allocation-triggered collection. Manual Collect
// calls still work.
func (s *Store) DisableGC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector.Disable()
}

// Close shuts down cycle collection: every tracked object is returned
// to the untracked state and the collector's lists are drained. Live
// objects stay valid and still die by reference counting; reference
// cycles dropped after Close leak.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.Close()
}

// Stats returns a snapshot of the collector's bookkeeping.
func (s *Store) Stats() gc.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.Stats()
}

// Uncollectable returns the objects the collector could not reclaim.
func (s *Store) Uncollectable() []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var objs []*Object
	for _, t := range s.collector.Uncollectable() {
		objs = append(objs, t.(*Object))
	}
	return objs
}

// Alive returns the number of live objects.
func (s *Store) Alive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Valid reports whether id names a live object.
func (s *Store) Valid(id ObjID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 {
		return false
	}
	o, ok := s.objects[id]
	return ok && !o.dead
}

// Get returns the live object with the given id, or nil.
func (s *Store) Get(id ObjID) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok || o.dead {
		return nil
	}
	return o
}

// check validates that o belongs to this store and is still alive.
func (s *Store) check(o *Object) error {
	if o == nil {
		return fmt.Errorf("heap: nil object")
	}
	if o.store != s {
		return fmt.Errorf("heap: object #%d belongs to a different store", o.id)
	}
	if o.dead {
		return fmt.Errorf("heap: object #%d is dead", o.id)
	}
	return nil
}

// The methods below assume the mutation domain is held. They are shared
// by the public API, the collector's callbacks and Mutator.

func (s *Store) allocate() (*Object, error) {
	o := &Object{
		id:    s.nextID,
		store: s,
		refs:  1,
	}
	s.nextID++
	s.objects[o.id] = o
	s.alive++
	if err := s.collector.OnAllocate(o); err != nil {
		delete(s.objects, o.id)
		s.alive--
		return nil, err
	}
	return o, nil
}

func (s *Store) retain(o *Object) {
	if o.dead {
		panic(fmt.Sprintf("heap: retain of dead object #%d", o.id))
	}
	o.refs++
}

func (s *Store) release(o *Object) {
	if o.dead {
		panic(fmt.Sprintf("heap: release of dead object #%d", o.id))
	}
	o.refs--
	if o.refs < 0 {
		panic(fmt.Sprintf("heap: negative reference count on object #%d", o.id))
	}
	if o.refs == 0 {
		s.free(o)
	}
}

// free reclaims an object whose reference count reached zero: untrack,
// mark dead, then release everything it referenced. The outgoing
// releases may cascade back into free for further objects.
func (s *Store) free(o *Object) {
	if o.Tracked() {
		if err := s.collector.OnDeallocate(o); err != nil {
			panic(fmt.Sprintf("heap: untracking object #%d: %v", o.id, err))
		}
	}
	o.dead = true
	o.finalizer = nil
	delete(s.objects, o.id)
	s.alive--
	o.clearRefs()
}

func (s *Store) setField(o *Object, name string, target *Object) {
	old := o.fields[name]
	if target != nil {
		s.retain(target)
		if o.fields == nil {
			o.fields = make(map[string]*Object)
		}
		o.fields[name] = target
	} else {
		delete(o.fields, name)
	}
	if old != nil {
		s.release(old)
	}
}

func (s *Store) append(o *Object, target *Object) {
	s.retain(target)
	o.elems = append(o.elems, target)
}
