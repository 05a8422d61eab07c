package gc

import (
	"errors"
	"testing"
)

// testObj is a minimal traceable container with hand-managed reference
// counts, used to drive the collector without a real allocator.
type testObj struct {
	Header
	hp   *testHeap
	name string
	refs int
	out  []*testObj

	dead        bool
	cleared     bool
	unclearable bool
	traceErr    error
	clearErr    error
	finalize    func(o *testObj)
}

func (o *testObj) RefCount() int { return o.refs }

func (o *testObj) Trace(visit Visitor) error {
	if o.traceErr != nil {
		return o.traceErr
	}
	for _, t := range o.out {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

func (o *testObj) Clear() error {
	if o.clearErr != nil {
		return o.clearErr
	}
	if o.unclearable {
		return ErrUnclearable
	}
	o.cleared = true
	out := o.out
	o.out = nil
	for _, t := range out {
		o.hp.release(t)
	}
	return nil
}

func (o *testObj) Unclearable() bool { return o.unclearable }

func (o *testObj) Finalize() {
	if o.finalize == nil {
		return
	}
	fn := o.finalize
	o.finalize = nil
	fn(o)
}

// testHeap is a toy refcounting allocator around a Collector: it owns
// the true reference counts and frees objects at zero, the way a real
// host would.
type testHeap struct {
	c     *Collector
	freed []string
}

func newTestHeap() *testHeap {
	return &testHeap{c: NewWithOptions(Options{AutoCollect: false})}
}

// alloc creates an object holding one external reference.
func (hp *testHeap) alloc(t *testing.T, name string) *testObj {
	t.Helper()
	o := &testObj{hp: hp, name: name, refs: 1}
	if err := hp.c.OnAllocate(o); err != nil {
		t.Fatalf("OnAllocate(%s) failed: %v", name, err)
	}
	return o
}

func (hp *testHeap) link(from, to *testObj) {
	from.out = append(from.out, to)
	to.refs++
}

func (hp *testHeap) release(o *testObj) {
	o.refs--
	if o.refs < 0 {
		panic("negative reference count on " + o.name)
	}
	if o.refs == 0 {
		hp.free(o)
	}
}

func (hp *testHeap) free(o *testObj) {
	if o.Tracked() {
		_ = hp.c.OnDeallocate(o)
	}
	o.dead = true
	hp.freed = append(hp.freed, o.name)
	out := o.out
	o.out = nil
	for _, t := range out {
		hp.release(t)
	}
}

// generationOf reports which generation list currently holds o, or -1.
func generationOf(c *Collector, o *testObj) int {
	for i := range c.generations {
		found := false
		c.generations[i].objects.each(func(h *Header) {
			if h == &o.Header {
				found = true
			}
		})
		if found {
			return i
		}
	}
	return -1
}

func TestTwoCycleReclaimed(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	hp.release(a)
	hp.release(b)

	if a.dead || b.dead {
		t.Fatal("cycle members freed by refcounting alone")
	}

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 2 {
		t.Errorf("Collected = %d, want 2", res.Collected)
	}
	if !a.dead || !b.dead {
		t.Error("cycle members not freed by collection")
	}
	if a.Tracked() || b.Tracked() {
		t.Error("freed objects still tracked")
	}
}

func TestSelfLoopReclaimed(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	hp.link(a, a)
	hp.release(a)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 1 {
		t.Errorf("Collected = %d, want 1", res.Collected)
	}
	if !a.dead {
		t.Error("self-loop not freed")
	}
}

func TestRootedCycleSurvives(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	c := hp.alloc(t, "c")
	hp.link(a, b)
	hp.link(b, c)
	hp.link(c, a)
	// keep a's external reference; reachability must propagate through
	// the cycle to b and c
	hp.release(b)
	hp.release(c)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 0 {
		t.Errorf("Collected = %d, want 0", res.Collected)
	}
	for _, o := range []*testObj{a, b, c} {
		if o.dead {
			t.Errorf("object %s freed despite external reachability", o.name)
		}
		if !o.Tracked() {
			t.Errorf("object %s lost tracking", o.name)
		}
	}
}

func TestAcyclicObjectsNeverCollected(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	c := hp.alloc(t, "c")
	hp.link(a, b)
	hp.link(b, c)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 0 {
		t.Errorf("Collected = %d, want 0", res.Collected)
	}
	if len(hp.freed) != 0 {
		t.Errorf("live objects freed: %v", hp.freed)
	}

	// dropping the head reclaims the chain through plain refcounting
	hp.release(a)
	if len(hp.freed) != 1 || a.dead != true {
		t.Fatalf("refcount release freed %v, want [a]", hp.freed)
	}
}

func TestCycleWithTail(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	tail := hp.alloc(t, "t")
	hp.link(a, b)
	hp.link(b, a)
	hp.link(a, tail)
	hp.release(a)
	hp.release(b)
	hp.release(tail)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 3 {
		t.Errorf("Collected = %d, want 3", res.Collected)
	}
	if !tail.dead {
		t.Error("tail object held only by the dead cycle not freed")
	}
}

func TestLateRootRescuesWholeChain(t *testing.T) {
	hp := newTestHeap()
	g1 := hp.alloc(t, "g1")
	g2 := hp.alloc(t, "g2")
	hp.link(g1, g2)
	hp.link(g2, g1)
	hp.release(g1)
	hp.release(g2)

	// the only externally referenced object sits last in allocation
	// order; reachability must still propagate down the whole chain,
	// through objects provisionally condemned before the root is seen
	w := hp.alloc(t, "w")
	y := hp.alloc(t, "y")
	x := hp.alloc(t, "x")
	r := hp.alloc(t, "r")
	hp.link(r, x)
	hp.link(x, y)
	hp.link(y, w)
	hp.release(x)
	hp.release(y)
	hp.release(w)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Resurrected {
		t.Error("Resurrected = true without any finalizer running")
	}
	if res.Collected != 2 {
		t.Errorf("Collected = %d, want 2 (the unrelated cycle)", res.Collected)
	}
	if !g1.dead || !g2.dead {
		t.Error("garbage cycle escaped reclamation")
	}
	for _, o := range []*testObj{r, x, y, w} {
		if o.dead {
			t.Errorf("object %s freed despite external reachability", o.name)
		}
		if !o.Tracked() {
			t.Errorf("object %s lost tracking", o.name)
		}
		if o.flags != 0 {
			t.Errorf("object %s has leftover flags %#x after the run", o.name, o.flags)
		}
	}
}

func TestBackedOutRunCountsCascadeFrees(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	d := hp.alloc(t, "d")
	hp.link(d, d)

	// the finalizer resurrects its own object and drops the last
	// reference to an unrelated candidate; the cascade-freed object is
	// really gone and must show up in the run's count even though the
	// reclamation backs out
	a.finalize = func(o *testObj) {
		o.refs++
		hp.release(d)
	}
	hp.release(a)
	hp.release(b)
	hp.release(d)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if !res.Resurrected {
		t.Fatal("Resurrected = false, want true")
	}
	if res.Collected != 1 {
		t.Errorf("Collected = %d, want 1 (the cascade-freed candidate)", res.Collected)
	}
	if !d.dead {
		t.Error("cascade-freed object reported but not freed")
	}
	if a.dead || b.dead {
		t.Error("resurrected objects were freed")
	}
	if got := hp.c.Stats().TotalCollected; got != 1 {
		t.Errorf("TotalCollected = %d, want 1", got)
	}
}

func TestPromotionMonotonic(t *testing.T) {
	hp := newTestHeap()
	x := hp.alloc(t, "x")

	if got := generationOf(hp.c, x); got != 0 {
		t.Fatalf("new object in generation %d, want 0", got)
	}

	if _, err := hp.c.CollectGeneration(0); err != nil {
		t.Fatalf("CollectGeneration(0) failed: %v", err)
	}
	if got := generationOf(hp.c, x); got != 1 {
		t.Errorf("after one gen-0 collection: generation %d, want 1", got)
	}

	// a second gen-0 collection must not touch it
	if _, err := hp.c.CollectGeneration(0); err != nil {
		t.Fatalf("CollectGeneration(0) failed: %v", err)
	}
	if got := generationOf(hp.c, x); got != 1 {
		t.Errorf("after second gen-0 collection: generation %d, want 1", got)
	}

	if _, err := hp.c.CollectGeneration(1); err != nil {
		t.Fatalf("CollectGeneration(1) failed: %v", err)
	}
	if got := generationOf(hp.c, x); got != 2 {
		t.Errorf("after gen-1 collection: generation %d, want 2", got)
	}

	if _, err := hp.c.Collect(); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if got := generationOf(hp.c, x); got != 2 {
		t.Errorf("after full collection: generation %d, want 2 (never younger)", got)
	}
}

func TestUncollectableParked(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	a.unclearable = true
	hp.release(a)
	hp.release(b)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if res.Collected != 0 {
		t.Errorf("Collected = %d, want 0", res.Collected)
	}
	if res.Uncollectable != 2 {
		t.Errorf("Uncollectable = %d, want 2 (holder plus its reachable closure)", res.Uncollectable)
	}
	if a.dead || b.dead {
		t.Error("uncollectable objects were freed")
	}

	parked := hp.c.Uncollectable()
	if len(parked) != 2 {
		t.Fatalf("Uncollectable() returned %d objects, want 2", len(parked))
	}

	stats := hp.c.Stats()
	if stats.Uncollectable != 2 {
		t.Errorf("Stats().Uncollectable = %d, want 2", stats.Uncollectable)
	}
	if stats.TotalUncollectable != 2 {
		t.Errorf("Stats().TotalUncollectable = %d, want 2", stats.TotalUncollectable)
	}

	// parked objects are out of the generations; another run must not
	// touch or recount them
	res, err = hp.c.Collect()
	if err != nil {
		t.Fatalf("second Collect() failed: %v", err)
	}
	if res.Uncollectable != 0 {
		t.Errorf("second run Uncollectable = %d, want 0", res.Uncollectable)
	}
}

func TestResurrectionBacksOutReclamation(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	// the finalizer stores a reference to a somewhere external, exactly
	// what a destructor writing self into a live structure does
	a.finalize = func(o *testObj) { o.refs++ }
	hp.release(a)
	hp.release(b)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if !res.Resurrected {
		t.Error("Resurrected = false, want true")
	}
	if res.Collected != 0 {
		t.Errorf("Collected = %d, want 0 (all-or-nothing fallback)", res.Collected)
	}
	if a.dead || b.dead {
		t.Fatal("resurrected objects were freed")
	}
	if !a.Tracked() || !b.Tracked() {
		t.Error("requeued objects lost tracking")
	}

	// the finalizer already ran; once the external reference drops, the
	// next collection reclaims the cycle without running it again
	hp.release(a)
	res, err = hp.c.Collect()
	if err != nil {
		t.Fatalf("second Collect() failed: %v", err)
	}
	if res.Resurrected {
		t.Error("finalizer ran twice")
	}
	if res.Collected != 2 {
		t.Errorf("second run Collected = %d, want 2", res.Collected)
	}
}

func TestCollectWhileCollectingFails(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)

	var nestedErr error
	a.finalize = func(o *testObj) {
		_, nestedErr = hp.c.Collect()
	}
	hp.release(a)
	hp.release(b)

	res, err := hp.c.Collect()
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if !errors.Is(nestedErr, ErrCollecting) {
		t.Errorf("nested Collect() error = %v, want ErrCollecting", nestedErr)
	}
	if res.Collected != 2 {
		t.Errorf("Collected = %d, want 2", res.Collected)
	}
}

func TestRegistrationContract(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")

	if err := hp.c.Register(a); !errors.Is(err, ErrAlreadyTracked) {
		t.Errorf("double Register error = %v, want ErrAlreadyTracked", err)
	}
	if !hp.c.IsTracked(a) {
		t.Error("IsTracked = false for a registered object")
	}

	if err := hp.c.Untrack(a); err != nil {
		t.Fatalf("Untrack failed: %v", err)
	}
	if hp.c.IsTracked(a) {
		t.Error("IsTracked = true after Untrack")
	}
	if err := hp.c.Untrack(a); !errors.Is(err, ErrNotTracked) {
		t.Errorf("double Untrack error = %v, want ErrNotTracked", err)
	}
	if err := hp.c.OnDeallocate(a); !errors.Is(err, ErrNotTracked) {
		t.Errorf("OnDeallocate of untracked error = %v, want ErrNotTracked", err)
	}
}

func TestCollectGenerationBounds(t *testing.T) {
	hp := newTestHeap()
	if _, err := hp.c.CollectGeneration(-1); err == nil {
		t.Error("CollectGeneration(-1) should fail")
	}
	if _, err := hp.c.CollectGeneration(NumGenerations); err == nil {
		t.Errorf("CollectGeneration(%d) should fail", NumGenerations)
	}
}

func TestZeroRefCountAborts(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	a.refs = 0 // allocator bug: released without OnDeallocate

	if _, err := hp.c.Collect(); !errors.Is(err, ErrZeroRefCount) {
		t.Fatalf("Collect() error = %v, want ErrZeroRefCount", err)
	}

	// the aborted run must leave both objects tracked with no transient
	// state
	for _, o := range []*testObj{a, b} {
		if !o.Tracked() {
			t.Errorf("object %s lost tracking after aborted run", o.name)
		}
		if o.flags != 0 {
			t.Errorf("object %s has leftover flags %#x", o.name, o.flags)
		}
	}
}

func TestTraceFailureAborts(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	a.traceErr = errors.New("visit blew up")

	if _, err := hp.c.Collect(); err == nil {
		t.Fatal("Collect() should fail when a trace fails")
	}
	for _, o := range []*testObj{a, b} {
		if !o.Tracked() {
			t.Errorf("object %s lost tracking after aborted run", o.name)
		}
		if o.flags != 0 {
			t.Errorf("object %s has leftover flags %#x", o.name, o.flags)
		}
		if o.dead {
			t.Errorf("object %s freed by aborted run", o.name)
		}
	}
}

func TestClearFailureRevivesRemaining(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	a.clearErr = errors.New("clear blew up")
	hp.release(a)
	hp.release(b)

	if _, err := hp.c.Collect(); err == nil {
		t.Fatal("Collect() should surface the clear failure")
	}
	if a.dead || b.dead {
		t.Error("objects freed despite aborted reclamation")
	}
	if !a.Tracked() || !b.Tracked() {
		t.Error("revived objects lost tracking")
	}
}

func TestAllocationCountIsNet(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	hp.alloc(t, "b")
	hp.alloc(t, "c")

	if got := hp.c.Stats().Generations[0].Count; got != 3 {
		t.Fatalf("generation 0 count = %d, want 3", got)
	}
	hp.release(a)
	if got := hp.c.Stats().Generations[0].Count; got != 2 {
		t.Errorf("generation 0 count after one release = %d, want 2", got)
	}
}

func TestCloseDrainsAllLists(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.c.Freeze()
	c := hp.alloc(t, "c")

	u := hp.alloc(t, "u")
	hp.link(u, u)
	u.unclearable = true
	hp.release(u)
	if _, err := hp.c.Collect(); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if err := hp.c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	for _, o := range []*testObj{a, b, c, u} {
		if o.Tracked() {
			t.Errorf("object %s still tracked after Close", o.name)
		}
		if o.flags != 0 {
			t.Errorf("object %s has leftover flags %#x", o.name, o.flags)
		}
	}
	stats := hp.c.Stats()
	if stats.Permanent != 0 || stats.Uncollectable != 0 {
		t.Errorf("Permanent = %d, Uncollectable = %d after Close, want 0, 0",
			stats.Permanent, stats.Uncollectable)
	}
	for i, g := range stats.Generations {
		if g.Objects != 0 || g.Count != 0 {
			t.Errorf("generation %d not drained: %d objects, count %d", i, g.Objects, g.Count)
		}
	}

	// untracked objects still die by plain refcounting
	hp.release(a)
	if !a.dead {
		t.Error("untracked object not freed at refcount zero")
	}
}

func TestStatsSnapshot(t *testing.T) {
	hp := newTestHeap()
	a := hp.alloc(t, "a")
	b := hp.alloc(t, "b")
	hp.link(a, b)
	hp.link(b, a)
	hp.release(a)
	hp.release(b)

	if _, err := hp.c.Collect(); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	stats := hp.c.Stats()
	if stats.TotalCollections != 1 {
		t.Errorf("TotalCollections = %d, want 1", stats.TotalCollections)
	}
	if stats.TotalCollected != 2 {
		t.Errorf("TotalCollected = %d, want 2", stats.TotalCollected)
	}
	if stats.Generations[NumGenerations-1].Collections != 1 {
		t.Errorf("oldest generation Collections = %d, want 1",
			stats.Generations[NumGenerations-1].Collections)
	}
	if got := stats.Generations[0].Objects + stats.Generations[1].Objects + stats.Generations[2].Objects; got != 0 {
		t.Errorf("%d objects still tracked, want 0", got)
	}
}
