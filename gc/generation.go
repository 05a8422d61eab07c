package gc

// NumGenerations is the number of mutable generations. A fourth,
// permanent partition holds frozen objects outside the aging scheme.
const NumGenerations = 3

// Default per-generation collection thresholds, youngest first.
var defaultThresholds = [NumGenerations]int{700, 10, 10}

// generation is one aging bucket: an intrusive list of tracked objects
// plus trigger bookkeeping. For generation 0, count is net allocations
// minus deallocations since the last collection; for older generations
// it counts collections of the generation below since this one was
// last collected.
type generation struct {
	objects   objList
	threshold int
	count     int

	// lifetime statistics for this generation
	collections   int64
	collected     int64
	uncollectable int64
}
