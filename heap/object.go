package heap

import "compost/gc"

// ObjID identifies a heap object.
// IDs are allocated sequentially and never reused.
type ObjID int64

// ObjNothing is the null object reference.
const ObjNothing ObjID = -1

// Object is a dynamically-typed container: a set of named fields plus an
// ordered element list, each slot referencing another object in the same
// store. Objects participate in reference counting through their store
// and in cycle collection through the embedded gc.Header.
type Object struct {
	gc.Header

	id    ObjID
	store *Store
	refs  int
	dead  bool

	fields map[string]*Object
	elems  []*Object

	finalizer   Finalizer
	unclearable bool
}

// Finalizer runs inside a collection just before its object would be
// reclaimed. It receives a Mutator because the store's mutation domain
// is already held; calling Store methods from a finalizer deadlocks.
type Finalizer func(m Mutator, o *Object)

// ID returns the object's identifier.
func (o *Object) ID() ObjID { return o.id }

// RefCount reports the object's true reference count.
func (o *Object) RefCount() int { return o.refs }

// Dead reports whether the object has been reclaimed.
func (o *Object) Dead() bool { return o.dead }

// Field returns the object referenced by the named field, or nil.
func (o *Object) Field(name string) *Object { return o.fields[name] }

// Elems returns the object's element list. The slice is shared with the
// object; callers must not modify it.
func (o *Object) Elems() []*Object { return o.elems }

// Trace visits every outgoing reference once: each field target, then
// each element.
func (o *Object) Trace(visit gc.Visitor) error {
	for _, t := range o.fields {
		if err := visit(t); err != nil {
			return err
		}
	}
	for _, t := range o.elems {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Clear severs every outgoing reference, releasing each target. A
// second call is a no-op. Objects marked unclearable refuse, which
// routes them to the collector's uncollectable list.
func (o *Object) Clear() error {
	if o.unclearable {
		return gc.ErrUnclearable
	}
	o.clearRefs()
	return nil
}

// clearRefs empties the reference slots before releasing the old
// targets, so a release cascade reaching back into o finds nothing left
// to release twice.
func (o *Object) clearRefs() {
	fields := o.fields
	elems := o.elems
	o.fields = nil
	o.elems = nil
	for _, t := range fields {
		o.store.release(t)
	}
	for _, t := range elems {
		o.store.release(t)
	}
}

// Unclearable reports whether the object refuses to sever its
// references. The collector checks this before clearing anything.
func (o *Object) Unclearable() bool { return o.unclearable }

// Finalize runs the object's finalizer, if any. The collector calls it
// at most once per object per lifetime.
func (o *Object) Finalize() {
	fn := o.finalizer
	if fn == nil {
		return
	}
	o.finalizer = nil
	fn(Mutator{o.store}, o)
}
