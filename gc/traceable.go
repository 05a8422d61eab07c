package gc

import "errors"

// Errors reported by the collector. Contract violations (double
// unregister, re-entered collection, a Trace callback failing mid-phase)
// abort the operation that detected them; ErrUnclearable is recoverable
// and routes the object to the uncollectable list instead.
var (
	// ErrUnclearable is returned from Clear by objects that cannot sever
	// their outgoing references. The collector parks them on the
	// uncollectable list rather than reclaiming them.
	ErrUnclearable = errors.New("gc: object cannot clear its references")

	// ErrNotTracked is returned when unregistering or untracking an
	// object the collector is not tracking.
	ErrNotTracked = errors.New("gc: object is not tracked")

	// ErrAlreadyTracked is returned when registering an object twice.
	ErrAlreadyTracked = errors.New("gc: object is already tracked")

	// ErrCollecting is returned when a collection is started while
	// another collection is already in progress.
	ErrCollecting = errors.New("gc: collection already in progress")

	// ErrZeroRefCount is returned when a tracked object reports a zero
	// reference count at the start of a collection. A tracked object is
	// always held by at least one reference; a zero count means the
	// allocator failed to unregister it before release.
	ErrZeroRefCount = errors.New("gc: tracked object has zero reference count")
)

// Visitor is invoked once per outgoing reference during a Trace call.
// A non-nil return aborts the traversal and is propagated to the caller.
type Visitor func(obj Traceable) error

// Traceable is the contract every collectible container object must
// implement. The collector never inspects concrete types; it reaches
// objects only through this interface and the embedded Header.
type Traceable interface {
	// GCHeader returns the object's collector header. Embedding a
	// Header value in the object provides this method automatically.
	// Exactly one header exists per object for its whole lifetime.
	GCHeader() *Header

	// RefCount reports the object's true reference count, owned by the
	// allocator. The collector reads it only at well-defined points
	// (snapshot and resurrection check) while the world is stopped.
	RefCount() int

	// Trace invokes visit once per outgoing live reference. It must not
	// mutate the object's reference set during the traversal.
	Trace(visit Visitor) error

	// Clear removes every outgoing reference the object holds,
	// releasing each target as an ordinary reference-count decrement.
	// Clear must be idempotent. Returning ErrUnclearable marks the
	// object uncollectable; any other error is a contract violation.
	Clear() error
}

// Unclearable is implemented by traceables whose Clear capability may
// be unavailable. The collector asks before clearing anything: an
// unreachable object reporting true is parked on the uncollectable
// list, together with everything it can reach in the unreachable set,
// since reclaiming that closure would leave the holder with dangling
// references.
type Unclearable interface {
	Unclearable() bool
}

// Finalizable is implemented by traceables that run user code before
// reclamation. Finalizers execute inside the collection and may
// resurrect their object by storing a reference to it elsewhere; the
// collector re-checks reachability afterwards and backs out of the
// whole reclamation if that happened.
type Finalizable interface {
	Finalize()
}
