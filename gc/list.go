package gc

// objList is a circular doubly-linked list of object headers with a
// sentinel root, threaded through the headers themselves. Insertion,
// removal and whole-list splicing are all O(1). The sentinel's self
// field is always nil, which distinguishes it from real entries.
type objList struct {
	root Header
}

func (l *objList) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *objList) empty() bool {
	return l.root.next == &l.root
}

// head returns the first header, or nil if the list is empty.
func (l *objList) head() *Header {
	if l.empty() {
		return nil
	}
	return l.root.next
}

// push appends h at the tail. h must not be on any list.
func (l *objList) push(h *Header) {
	last := l.root.prev
	h.prev = last
	h.next = &l.root
	last.next = h
	l.root.prev = h
}

// remove unlinks h and nils its links, returning it to the untracked
// state. h must be on a list.
func (l *objList) remove(h *Header) {
	h.prev.next = h.next
	h.next.prev = h.prev
	h.next = nil
	h.prev = nil
}

// moveTail unlinks h from whatever position it occupies and re-appends
// it at l's tail.
func (l *objList) moveTail(h *Header) {
	h.prev.next = h.next
	h.next.prev = h.prev
	l.push(h)
}

// spliceInto moves l's entire contents onto the tail of dst in O(1),
// leaving l empty. Splicing a list into itself is a no-op.
func (l *objList) spliceInto(dst *objList) {
	if l == dst || l.empty() {
		return
	}
	first := l.root.next
	last := l.root.prev
	tail := dst.root.prev

	tail.next = first
	first.prev = tail
	last.next = &dst.root
	dst.root.prev = last

	l.init()
}

// size counts the entries. O(n); used for statistics and promotion
// bookkeeping, never on an algorithm hot path.
func (l *objList) size() int {
	n := 0
	for h := l.root.next; h != &l.root; h = h.next {
		n++
	}
	return n
}

// each calls fn for every header. fn must not unlink the current entry;
// phases that move entries mid-walk iterate manually instead.
func (l *objList) each(fn func(h *Header)) {
	for h := l.root.next; h != &l.root; h = h.next {
		fn(h)
	}
}
