package heap

// Mutator mutates the object graph from code that is already running
// inside the store's mutation domain, such as finalizers. Store methods
// would re-enter the store's lock there and deadlock; Mutator methods
// work on the already-held domain instead.
//
// Misuse (touching a dead object, underflowing a reference count) is a
// programmer error in the finalizer and panics, matching the store's
// internal contract checks.
type Mutator struct {
	s *Store
}

// NewObject allocates an object. Allocations inside a collection are
// registered but never trigger a nested collection.
func (m Mutator) NewObject() (*Object, error) {
	return m.s.allocate()
}

// Retain adds a reference to o.
func (m Mutator) Retain(o *Object) {
	m.s.retain(o)
}

// Release drops a reference to o.
func (m Mutator) Release(o *Object) {
	m.s.release(o)
}

// SetField points o's named field at target, adjusting reference counts.
// Storing a reference to an object the collector has condemned is how a
// finalizer resurrects it; the collector detects this and backs out of
// the reclamation.
func (m Mutator) SetField(o *Object, name string, target *Object) {
	m.s.setField(o, name, target)
}

// Append adds target to o's element list.
func (m Mutator) Append(o *Object, target *Object) {
	m.s.append(o, target)
}
