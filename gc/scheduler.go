package gc

import "log"

// shouldCollect reports whether the allocation hook should start a
// collection: some generation's count has crossed its threshold and,
// for the oldest generation, the long-lived heuristic allows a full
// scan.
func (c *Collector) shouldCollect() bool {
	for i := NumGenerations - 1; i >= 0; i-- {
		g := &c.generations[i]
		if g.count <= g.threshold {
			continue
		}
		if i == NumGenerations-1 && c.longLivedPending < c.longLivedTotal/4 {
			continue
		}
		return true
	}
	return false
}

// collectGenerations runs at most one collection: the oldest generation
// whose count exceeds its threshold. Collecting it subsumes all younger
// generations, so nothing younger needs a separate pass. A due full
// collection is deferred while cheap collections keep long-lived
// garbage in check: it runs only once the objects that survived into
// the oldest generation since the last full scan amount to a quarter of
// the long-lived population.
func (c *Collector) collectGenerations() {
	for i := NumGenerations - 1; i >= 0; i-- {
		g := &c.generations[i]
		if g.count <= g.threshold {
			continue
		}
		if i == NumGenerations-1 && c.longLivedPending < c.longLivedTotal/4 {
			continue
		}
		if _, err := c.collect(i); err != nil {
			// contract violation in some object's trace or clear;
			// automatic collection must not take the host down
			log.Printf("gc: automatic collection of generation %d failed: %v", i, err)
		}
		return
	}
}
