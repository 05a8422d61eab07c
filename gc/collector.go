package gc

import "log"

// Options tunes a Collector.
type Options struct {
	// Thresholds are the per-generation trigger counts, youngest first.
	// A zero or negative entry keeps the default for that generation.
	Thresholds [NumGenerations]int

	// AutoCollect enables threshold-driven collection from the
	// allocation hook. Manual Collect calls always work.
	AutoCollect bool

	// Verbose logs a line per collection run.
	Verbose bool
}

// DefaultOptions returns the standard tuning: thresholds 700/10/10 and
// automatic collection enabled.
func DefaultOptions() Options {
	return Options{Thresholds: defaultThresholds, AutoCollect: true}
}

// Collector is the process-wide cycle collector state: three mutable
// generations, the permanent partition, the uncollectable list, and the
// scheduling heuristics.
//
// The collector is deliberately not self-locking. It assumes the
// stop-the-world model: one mutual-exclusion domain serializes every
// mutation of the traced object graph (allocation, reference release,
// collection), and the allocator owning that domain calls in while
// holding it. Clear and finalizer callbacks issued during a collection
// re-enter the allocator on deallocation cascades, so an internal lock
// here would self-deadlock on exactly the paths that matter.
type Collector struct {
	generations   [NumGenerations]generation
	permanent     objList
	uncollectable objList

	enabled    bool
	collecting bool
	verbose    bool

	// runReclaimed counts deallocations of unreachable-classified
	// objects during the current collection; valid only while
	// collecting is set
	runReclaimed int

	// full-collection heuristic state, reset on each full collection
	longLivedTotal   int
	longLivedPending int

	totalCollections   int64
	totalCollected     int64
	totalUncollectable int64
}

// New returns a collector with DefaultOptions.
func New() *Collector {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions returns a collector tuned by opts.
func NewWithOptions(opts Options) *Collector {
	c := &Collector{
		enabled: opts.AutoCollect,
		verbose: opts.Verbose,
	}
	for i := range c.generations {
		g := &c.generations[i]
		g.objects.init()
		g.threshold = defaultThresholds[i]
		if opts.Thresholds[i] > 0 {
			g.threshold = opts.Thresholds[i]
		}
	}
	c.permanent.init()
	c.uncollectable.init()
	return c
}

// OnAllocate begins tracking obj in generation 0 and may run a
// collection synchronously if a threshold has been crossed. The
// allocator must call it exactly once per traceable object, after the
// object is fully initialized. The hook never starts a collection while
// one is already running.
func (c *Collector) OnAllocate(obj Traceable) error {
	if err := c.Register(obj); err != nil {
		return err
	}
	if c.enabled && !c.collecting && c.shouldCollect() {
		c.collectGenerations()
	}
	return nil
}

// OnDeallocate stops tracking obj. The allocator must call it exactly
// once, when obj's reference count reaches zero outside a collection or
// when a deallocation cascade frees it during one.
func (c *Collector) OnDeallocate(obj Traceable) error {
	h := obj.GCHeader()
	if !h.Tracked() {
		return ErrNotTracked
	}
	unlink(h)
	if c.collecting && h.unreachable() {
		c.runReclaimed++
	}
	h.flags = 0
	// net-allocation counter: a short-lived object that dies before the
	// next collection cancels out its own allocation
	if c.generations[0].count > 0 {
		c.generations[0].count--
	}
	return nil
}

// Register inserts obj at the tail of generation 0 and counts the
// allocation. Registering a tracked object is a contract violation.
func (c *Collector) Register(obj Traceable) error {
	h := obj.GCHeader()
	if h.Tracked() {
		return ErrAlreadyTracked
	}
	h.self = obj
	c.generations[0].objects.push(h)
	c.generations[0].count++
	return nil
}

// Untrack removes obj from collector bookkeeping without freeing it.
// Objects that can never participate in a cycle may opt out this way;
// plain reference counting still reclaims them. Untracking an untracked
// object is a contract violation.
func (c *Collector) Untrack(obj Traceable) error {
	h := obj.GCHeader()
	if !h.Tracked() {
		return ErrNotTracked
	}
	unlink(h)
	h.flags = 0
	return nil
}

// IsTracked reports whether the collector currently tracks obj.
func (c *Collector) IsTracked(obj Traceable) bool {
	return obj.GCHeader().Tracked()
}

// unlink removes h from whichever list currently holds it and returns
// it to the untracked state.
func unlink(h *Header) {
	h.prev.next = h.next
	h.next.prev = h.prev
	h.next = nil
	h.prev = nil
	h.self = nil
}

// Enable allows the allocation hook to trigger collections.
func (c *Collector) Enable() { c.enabled = true }

// Disable suppresses automatic collection. Manual Collect still works.
func (c *Collector) Disable() { c.enabled = false }

// Enabled reports whether automatic collection is on.
func (c *Collector) Enabled() bool { return c.enabled }

// Freeze moves every object in the mutable generations into the
// permanent partition and zeroes the generation counts. Frozen objects
// are ignored by all future collections until Unfreeze. Freezing twice
// in a row is a no-op the second time.
func (c *Collector) Freeze() {
	for i := range c.generations {
		g := &c.generations[i]
		g.objects.each(func(h *Header) { h.setFlag(flagFrozen) })
		g.objects.spliceInto(&c.permanent)
		g.count = 0
	}
}

// Unfreeze returns the permanent partition's objects to the oldest
// mutable generation, making them collectible again.
func (c *Collector) Unfreeze() {
	c.permanent.each(func(h *Header) { h.clearFlag(flagFrozen) })
	c.permanent.spliceInto(&c.generations[NumGenerations-1].objects)
}

// Close drains every collector list, returning all tracked objects to
// the untracked state without freeing them. Plain reference counting
// still reclaims the objects afterwards; they just no longer
// participate in cycle collection. Closing during a collection is a
// contract violation.
func (c *Collector) Close() error {
	if c.collecting {
		return ErrCollecting
	}
	drain := func(l *objList) {
		for !l.empty() {
			h := l.head()
			unlink(h)
			h.flags = 0
		}
	}
	for i := range c.generations {
		drain(&c.generations[i].objects)
		c.generations[i].count = 0
	}
	drain(&c.permanent)
	drain(&c.uncollectable)
	c.longLivedTotal = 0
	c.longLivedPending = 0
	return nil
}

// Uncollectable returns the objects that could not be reclaimed because
// they lack a usable Clear capability. They stay tracked here until the
// caller deals with them.
func (c *Collector) Uncollectable() []Traceable {
	var objs []Traceable
	c.uncollectable.each(func(h *Header) { objs = append(objs, h.self) })
	return objs
}

func (c *Collector) logf(format string, args ...interface{}) {
	if c.verbose {
		log.Printf(format, args...)
	}
}
