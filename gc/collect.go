package gc

import (
	"errors"
	"fmt"
	"time"
)

// Result reports the outcome of one collection run.
type Result struct {
	// Generation is the oldest generation included in the run.
	Generation int

	// Collected is the number of objects reclaimed by the run,
	// including objects freed by deallocation cascades before a
	// backed-out reclamation returned.
	Collected int

	// Uncollectable is the number of objects moved to the
	// uncollectable list because they could not clear their references.
	Uncollectable int

	// Resurrected reports that a finalizer made a candidate reachable
	// again, so the entire unreachable set was requeued instead of
	// reclaimed.
	Resurrected bool

	Duration time.Duration
}

// Collect runs a full collection over all generations and returns the
// number of objects reclaimed. Manual collection always runs; it is not
// subject to the long-lived heuristic or to Disable.
func (c *Collector) Collect() (Result, error) {
	return c.CollectGeneration(NumGenerations - 1)
}

// CollectGeneration collects generation gen together with all younger
// generations.
func (c *Collector) CollectGeneration(gen int) (Result, error) {
	if gen < 0 || gen >= NumGenerations {
		return Result{}, fmt.Errorf("gc: no such generation %d", gen)
	}
	if c.collecting {
		return Result{}, ErrCollecting
	}
	return c.collect(gen)
}

// collect is the core cycle-detection pipeline: merge younger
// generations, snapshot reference counts, subtract internal references,
// isolate the unreachable set, promote survivors, re-check for
// resurrection, then clear and reclaim the garbage.
func (c *Collector) collect(gen int) (Result, error) {
	start := time.Now()
	c.collecting = true
	c.runReclaimed = 0
	defer func() { c.collecting = false }()

	res := Result{Generation: gen}
	g := &c.generations[gen]
	g.collections++
	c.totalCollections++
	c.logf("gc: collecting generation %d", gen)

	if gen+1 < NumGenerations {
		c.generations[gen+1].count++
	}
	for i := 0; i <= gen; i++ {
		c.generations[i].count = 0
	}

	// Step 1: fold every younger generation into the one being
	// collected so cross-generation references inside the set are
	// treated uniformly. Each splice is O(1) and atomic.
	young := &g.objects
	for i := 0; i < gen; i++ {
		c.generations[i].objects.spliceInto(young)
	}
	oldIdx := gen + 1
	if oldIdx >= NumGenerations {
		oldIdx = NumGenerations - 1
	}
	old := &c.generations[oldIdx].objects

	// Steps 2 and 3: snapshot true reference counts into the headers,
	// then cancel out every reference between members of young. What
	// remains in shadowRefs is the count of references from outside.
	if err := c.updateRefs(young); err != nil {
		c.abortRun(young, nil)
		return Result{}, err
	}
	if err := c.subtractRefs(young); err != nil {
		c.abortRun(young, nil)
		return Result{}, err
	}

	// Step 4: split young into survivors and reclamation candidates.
	var unreachable objList
	unreachable.init()
	if err := c.moveUnreachable(young, &unreachable); err != nil {
		c.abortRun(young, &unreachable)
		return Result{}, err
	}

	// Step 5: promote survivors. On a full collection young and old are
	// the same list; that is also where the long-lived heuristic resets.
	if gen == NumGenerations-1 {
		c.longLivedPending = 0
		c.longLivedTotal = young.size()
	} else {
		if gen == NumGenerations-2 {
			c.longLivedPending += young.size()
		}
		young.spliceInto(old)
	}

	// Candidates without a usable clear capability, and everything they
	// can reach inside the candidate set, move to the uncollectable
	// list before anything destructive happens.
	if err := c.moveUncollectable(&unreachable, &res); err != nil {
		c.reviveAll(&unreachable, old)
		return Result{}, err
	}

	// Step 6: run finalizers, then re-verify that nothing in the
	// unreachable set became reachable again. A single resurrection
	// aborts the whole reclamation; partial reclamation could leave
	// live references into cleared objects.
	c.finalizeGarbage(&unreachable)
	resurrected, err := c.checkGarbage(&unreachable)
	if err != nil {
		c.reviveAll(&unreachable, old)
		return Result{}, err
	}
	if resurrected {
		n := c.reviveAll(&unreachable, old)
		res.Resurrected = true
		res.Collected = c.runReclaimed
		c.finishRun(g, &res, start)
		c.logf("gc: generation %d: resurrection detected, requeued %d objects", gen, n)
		return res, nil
	}

	// Step 7: clear and reclaim.
	if err := c.deleteGarbage(&unreachable, old, &res); err != nil {
		res.Collected = c.runReclaimed
		c.finishRun(g, &res, start)
		return res, err
	}
	res.Collected = c.runReclaimed

	c.finishRun(g, &res, start)
	c.logf("gc: generation %d: %d collected, %d uncollectable (%s)",
		res.Generation, res.Collected, res.Uncollectable, res.Duration)
	return res, nil
}

// finishRun folds a run's results into the lifetime statistics.
func (c *Collector) finishRun(g *generation, res *Result, start time.Time) {
	g.collected += int64(res.Collected)
	g.uncollectable += int64(res.Uncollectable)
	c.totalCollected += int64(res.Collected)
	c.totalUncollectable += int64(res.Uncollectable)
	res.Duration = time.Since(start)
}

// updateRefs copies each object's true reference count into its header
// and marks it as part of the collection.
func (c *Collector) updateRefs(young *objList) error {
	for h := young.root.next; h != &young.root; h = h.next {
		rc := h.self.RefCount()
		if rc <= 0 {
			return fmt.Errorf("%w (refcount %d)", ErrZeroRefCount, rc)
		}
		h.shadowRefs = rc
		h.setFlag(flagCollecting)
	}
	return nil
}

// subtractRefs cancels out references held between members of young.
// Membership is tested through the collecting flag, so references to
// frozen, uncollectable or newer objects are left alone. Self-references
// subtract once, matching their single contribution to the snapshot.
func (c *Collector) subtractRefs(young *objList) error {
	for h := young.root.next; h != &young.root; h = h.next {
		err := h.self.Trace(func(t Traceable) error {
			th := t.GCHeader()
			if th.collecting() {
				th.shadowRefs--
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("gc: trace failed during subtraction: %w", err)
		}
	}
	return nil
}

// moveUnreachable walks young once. Objects with external references
// remaining are survivors; everything they reach is dragged back into
// the survivor set, including objects provisionally condemned earlier in
// the walk. Objects still at zero when the cursor passes are moved to
// the unreachable list as cycle-garbage candidates.
func (c *Collector) moveUnreachable(young, unreachable *objList) error {
	h := young.root.next
	for h != &young.root {
		if h.shadowRefs > 0 {
			err := h.self.Trace(func(t Traceable) error {
				th := t.GCHeader()
				if !th.collecting() || th.shadowRefs > 0 {
					return nil
				}
				th.shadowRefs = 1
				if th.unreachable() {
					// condemned too early; move it to the tail so
					// the cursor rescans it
					th.clearFlag(flagUnreachable)
					young.moveTail(th)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("gc: trace failed during isolation: %w", err)
			}
			h.clearFlag(flagCollecting)
			// rescued objects sit between h and the sentinel; the
			// link must be read after the traverse so the cursor
			// walks into them
			h = h.next
		} else {
			next := h.next
			unreachable.moveTail(h)
			h.setFlag(flagUnreachable)
			h = next
		}
	}
	return nil
}

// moveUncollectable parks candidates that report no usable clear
// capability, then pulls everything they reach inside the candidate set
// out with them. The closure walk appends to the parked list while
// iterating it, which covers transitive reach without a separate
// worklist.
func (c *Collector) moveUncollectable(unreachable *objList, res *Result) error {
	var parked objList
	parked.init()

	h := unreachable.root.next
	for h != &unreachable.root {
		next := h.next
		if u, ok := h.self.(Unclearable); ok && u.Unclearable() {
			h.clearFlag(flagCollecting)
			h.clearFlag(flagUnreachable)
			parked.moveTail(h)
			res.Uncollectable++
		}
		h = next
	}

	for p := parked.root.next; p != &parked.root; p = p.next {
		err := p.self.Trace(func(t Traceable) error {
			th := t.GCHeader()
			if th.Tracked() && th.unreachable() {
				th.clearFlag(flagCollecting)
				th.clearFlag(flagUnreachable)
				parked.moveTail(th)
				res.Uncollectable++
			}
			return nil
		})
		if err != nil {
			// parked objects are already out of the run; they still
			// belong on the uncollectable list
			parked.spliceInto(&c.uncollectable)
			return fmt.Errorf("gc: trace failed while isolating uncollectable objects: %w", err)
		}
	}

	parked.spliceInto(&c.uncollectable)
	return nil
}

// finalizeGarbage runs the Finalize hook of every candidate exactly
// once. Finalizers run inside the collection and may mutate the object
// graph, including freeing candidates through deallocation cascades, so
// the walk restarts from the list head after every call.
func (c *Collector) finalizeGarbage(unreachable *objList) {
	for {
		var target *Header
		for h := unreachable.root.next; h != &unreachable.root; h = h.next {
			if h.finalized() {
				continue
			}
			if _, ok := h.self.(Finalizable); ok {
				target = h
				break
			}
			h.setFlag(flagFinalized)
		}
		if target == nil {
			return
		}
		target.setFlag(flagFinalized)
		target.self.(Finalizable).Finalize()
	}
}

// checkGarbage re-derives external reachability for the unreachable set
// alone. Candidates hold references only among themselves; a reference
// count residue after subtracting those means a finalizer stored a
// reference somewhere outside, i.e. a resurrection.
func (c *Collector) checkGarbage(unreachable *objList) (bool, error) {
	unreachable.each(func(h *Header) {
		h.shadowRefs = h.self.RefCount()
	})
	for h := unreachable.root.next; h != &unreachable.root; h = h.next {
		err := h.self.Trace(func(t Traceable) error {
			th := t.GCHeader()
			if th.Tracked() && th.unreachable() {
				th.shadowRefs--
			}
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("gc: trace failed during resurrection check: %w", err)
		}
	}
	resurrected := false
	unreachable.each(func(h *Header) {
		if h.shadowRefs > 0 {
			resurrected = true
		}
	})
	return resurrected, nil
}

// deleteGarbage clears candidates one at a time from the list head.
// Severing an object's references drops its targets' true reference
// counts; cascaded zero-count deallocations re-enter OnDeallocate, which
// unlinks the freed objects and counts them. An object still referenced
// after its own clear is parked on a side list until the remaining
// clears release it; anything left there at the end genuinely survived
// and is aged into the older generation.
func (c *Collector) deleteGarbage(unreachable, old *objList, res *Result) error {
	var cleared objList
	cleared.init()
	for !unreachable.empty() {
		h := unreachable.head()
		obj := h.self
		err := obj.Clear()
		switch {
		case err == nil:
			if h.Tracked() && h.unreachable() {
				cleared.moveTail(h)
			}
		case errors.Is(err, ErrUnclearable):
			h.clearFlag(flagCollecting)
			h.clearFlag(flagUnreachable)
			c.uncollectable.moveTail(h)
			res.Uncollectable++
		default:
			c.reviveAll(unreachable, old)
			c.reviveAll(&cleared, old)
			return fmt.Errorf("gc: clear failed: %w", err)
		}
	}
	cleared.each(func(h *Header) {
		h.clearFlag(flagCollecting)
		h.clearFlag(flagUnreachable)
	})
	cleared.spliceInto(old)
	return nil
}

// reviveAll returns every remaining candidate to the older generation
// with its collection state cleared, reporting how many were requeued.
func (c *Collector) reviveAll(unreachable, old *objList) int {
	n := 0
	unreachable.each(func(h *Header) {
		h.clearFlag(flagCollecting)
		h.clearFlag(flagUnreachable)
		n++
	})
	unreachable.spliceInto(old)
	return n
}

// abortRun restores the pre-collection list state after a contract
// violation in the snapshot, subtraction or isolation phase: candidates
// rejoin the working list and all transient flags are dropped, leaving
// every object in the generation that was being collected.
func (c *Collector) abortRun(young, unreachable *objList) {
	if unreachable != nil {
		unreachable.each(func(h *Header) {
			h.clearFlag(flagCollecting)
			h.clearFlag(flagUnreachable)
		})
		unreachable.spliceInto(young)
	}
	young.each(func(h *Header) {
		h.clearFlag(flagCollecting)
		h.clearFlag(flagUnreachable)
	})
}
