package gc

// GenerationStats is the read-only view of one generation.
type GenerationStats struct {
	Objects       int // currently tracked
	Threshold     int
	Count         int
	Collections   int64
	Collected     int64
	Uncollectable int64
}

// Stats is a point-in-time snapshot of collector state.
type Stats struct {
	Generations [NumGenerations]GenerationStats

	// Permanent is the number of frozen objects.
	Permanent int

	// Uncollectable is the number of objects parked on the
	// uncollectable list.
	Uncollectable int

	TotalCollections   int64
	TotalCollected     int64
	TotalUncollectable int64

	LongLivedTotal   int
	LongLivedPending int

	Enabled bool
}

// Stats returns a snapshot of the collector's bookkeeping. The object
// counts walk the generation lists, so the cost is proportional to the
// number of tracked objects.
func (c *Collector) Stats() Stats {
	s := Stats{
		Permanent:          c.permanent.size(),
		Uncollectable:      c.uncollectable.size(),
		TotalCollections:   c.totalCollections,
		TotalCollected:     c.totalCollected,
		TotalUncollectable: c.totalUncollectable,
		LongLivedTotal:     c.longLivedTotal,
		LongLivedPending:   c.longLivedPending,
		Enabled:            c.enabled,
	}
	for i := range c.generations {
		g := &c.generations[i]
		s.Generations[i] = GenerationStats{
			Objects:       g.objects.size(),
			Threshold:     g.threshold,
			Count:         g.count,
			Collections:   g.collections,
			Collected:     g.collected,
			Uncollectable: g.uncollectable,
		}
	}
	return s
}
