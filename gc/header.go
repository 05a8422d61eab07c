package gc

// Header state flags. An object carries collecting from the refcount
// snapshot until it is classified; unreachable marks reclamation
// candidates; frozen marks members of the permanent partition.
const (
	flagCollecting uint8 = 1 << iota
	flagUnreachable
	flagFrozen
	flagFinalized
)

// Header is the per-object collector metadata. Traceable types embed a
// Header value; the collector threads tracked objects onto generation
// lists through it. The zero value means "untracked".
//
// The shadowRefs field holds a working copy of the true reference count
// between the snapshot and classification phases of a collection. It is
// meaningless outside that window; the link and counter concerns are
// kept in separate fields so neither is ever misread as the other.
type Header struct {
	next, prev *Header
	self       Traceable // set while tracked
	shadowRefs int
	flags      uint8
}

// GCHeader returns h, satisfying the Traceable contract for any type
// that embeds a Header.
func (h *Header) GCHeader() *Header { return h }

// Tracked reports whether the object is currently on a collector list
// (including the permanent partition).
func (h *Header) Tracked() bool { return h.next != nil }

// Frozen reports whether the object is in the permanent partition.
func (h *Header) Frozen() bool { return h.flags&flagFrozen != 0 }

func (h *Header) collecting() bool  { return h.flags&flagCollecting != 0 }
func (h *Header) unreachable() bool { return h.flags&flagUnreachable != 0 }
func (h *Header) finalized() bool   { return h.flags&flagFinalized != 0 }

func (h *Header) setFlag(f uint8)   { h.flags |= f }
func (h *Header) clearFlag(f uint8) { h.flags &^= f }
