package main

import (
	"flag"
	"log"

	"compost/config"
	"compost/gc"
	"compost/heap"
)

func main() {
	configPath := flag.String("config", "", "YAML tuning file path")
	objects := flag.Int("objects", 0, "Override total objects to allocate")
	cycleEvery := flag.Int("cycle-every", -1, "Override cycle frequency (0 disables cycles)")
	cycleLen := flag.Int("cycle-len", 0, "Override generated cycle length")
	window := flag.Int("window", 100, "Live objects kept during the workload")
	verbose := flag.Bool("verbose", false, "Log each collection run")
	finalCollect := flag.Bool("collect", true, "Force a full collection after the workload")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *objects > 0 {
		cfg.Stress.Objects = *objects
	}
	if *cycleEvery >= 0 {
		cfg.Stress.CycleEvery = *cycleEvery
	}
	if *cycleLen > 0 {
		cfg.Stress.CycleLen = *cycleLen
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration after flag overrides: %v", err)
	}

	store := heap.NewStoreWith(gc.NewWithOptions(cfg.Options()))

	log.Printf("Running workload: %d objects, cycle of %d every %d allocations",
		cfg.Stress.Objects, cfg.Stress.CycleLen, cfg.Stress.CycleEvery)
	if err := runWorkload(store, cfg.Stress, *window); err != nil {
		log.Fatalf("Workload failed: %v", err)
	}
	log.Printf("Workload done: %d objects alive", store.Alive())

	if *finalCollect {
		res, err := store.Collect()
		if err != nil {
			log.Fatalf("Final collection failed: %v", err)
		}
		log.Printf("Full collection: %d collected, %d uncollectable in %s",
			res.Collected, res.Uncollectable, res.Duration)
	}

	printStats(store.Stats())
}

// runWorkload allocates objects with a bounded set of live roots,
// periodically linking a batch into a reference cycle and dropping its
// external references. The cycles are garbage only the collector can
// reclaim; everything else dies by reference counting as the window
// slides.
func runWorkload(store *heap.Store, stress config.StressConfig, window int) error {
	var live []*heap.Object

	allocated := 0
	for allocated < stress.Objects {
		if stress.CycleEvery > 0 && allocated%stress.CycleEvery == 0 {
			n, err := makeCycle(store, stress.CycleLen)
			if err != nil {
				return err
			}
			allocated += n
			continue
		}

		o, err := store.NewObject()
		if err != nil {
			return err
		}
		allocated++

		live = append(live, o)
		if len(live) > window {
			oldest := live[0]
			live = live[1:]
			if err := store.Release(oldest); err != nil {
				return err
			}
		}
	}

	for _, o := range live {
		if err := store.Release(o); err != nil {
			return err
		}
	}
	return nil
}

// makeCycle allocates n objects linked in a ring and drops every
// external reference to them.
func makeCycle(store *heap.Store, n int) (int, error) {
	objs := make([]*heap.Object, n)
	for i := range objs {
		o, err := store.NewObject()
		if err != nil {
			return i, err
		}
		objs[i] = o
	}
	for i, o := range objs {
		if err := store.SetField(o, "next", objs[(i+1)%n]); err != nil {
			return n, err
		}
	}
	for _, o := range objs {
		if err := store.Release(o); err != nil {
			return n, err
		}
	}
	return n, nil
}

func printStats(s gc.Stats) {
	for i, g := range s.Generations {
		log.Printf("Generation %d: %d objects, count %d/%d, %d collections, %d collected, %d uncollectable",
			i, g.Objects, g.Count, g.Threshold, g.Collections, g.Collected, g.Uncollectable)
	}
	log.Printf("Permanent: %d objects, uncollectable list: %d", s.Permanent, s.Uncollectable)
	log.Printf("Totals: %d collections, %d collected, %d uncollectable",
		s.TotalCollections, s.TotalCollected, s.TotalUncollectable)
	log.Printf("Long-lived: %d total, %d pending", s.LongLivedTotal, s.LongLivedPending)
}
