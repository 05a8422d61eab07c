package conformance

import (
	"fmt"
	"strconv"

	"compost/gc"
	"compost/heap"
)

// Result represents the outcome of running a single scenario.
type Result struct {
	Scenario   LoadedScenario
	Passed     bool
	Skipped    bool
	SkipReason string
	Error      error
}

// Run executes one scenario against a fresh store. Automatic collection
// is disabled so the run is the only collection that happens.
func Run(ls LoadedScenario) Result {
	res := Result{Scenario: ls}

	if skipped, reason := ls.Scenario.IsSkipped(); skipped {
		res.Skipped = true
		res.SkipReason = reason
		return res
	}

	if err := run(&ls.Scenario); err != nil {
		res.Error = err
		return res
	}
	res.Passed = true
	return res
}

// RunAll executes every scenario.
func RunAll(scenarios []LoadedScenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, ls := range scenarios {
		results = append(results, Run(ls))
	}
	return results
}

func run(sc *Scenario) error {
	store := heap.NewStoreWith(gc.NewWithOptions(gc.Options{AutoCollect: false}))

	objs := make(map[string]*heap.Object, len(sc.Objects))
	ids := make(map[string]heap.ObjID, len(sc.Objects))
	for _, name := range sc.Objects {
		o, err := store.NewObject()
		if err != nil {
			return fmt.Errorf("allocating %q: %w", name, err)
		}
		objs[name] = o
		ids[name] = o.ID()
	}

	for _, ref := range sc.Refs {
		var err error
		if ref.Field != "" {
			err = store.SetField(objs[ref.From], ref.Field, objs[ref.To])
		} else {
			err = store.Append(objs[ref.From], objs[ref.To])
		}
		if err != nil {
			return fmt.Errorf("ref %s->%s: %w", ref.From, ref.To, err)
		}
	}

	for _, name := range sc.Unclearable {
		if err := store.MarkUnclearable(objs[name]); err != nil {
			return fmt.Errorf("marking %q unclearable: %w", name, err)
		}
	}

	// Drop the creator references of everything that is not a root.
	// Acyclic garbage dies right here through plain reference counting;
	// cycles wait for the collector.
	roots := make(map[string]bool, len(sc.Roots))
	for _, name := range sc.Roots {
		roots[name] = true
	}
	for _, name := range sc.Objects {
		if !roots[name] {
			if err := store.Release(objs[name]); err != nil {
				return fmt.Errorf("releasing %q: %w", name, err)
			}
		}
	}

	result, err := collect(store, sc.Collect)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	return checkExpectation(sc, store, ids, result)
}

func collect(store *heap.Store, mode string) (gc.Result, error) {
	if mode == "" || mode == "full" {
		return store.Collect()
	}
	gen, err := strconv.Atoi(mode)
	if err != nil {
		return gc.Result{}, fmt.Errorf("bad collect mode %q", mode)
	}
	return store.CollectGeneration(gen)
}

func checkExpectation(sc *Scenario, store *heap.Store, ids map[string]heap.ObjID, result gc.Result) error {
	exp := &sc.Expect
	if exp.Collected != nil && result.Collected != *exp.Collected {
		return fmt.Errorf("collected %d objects, want %d", result.Collected, *exp.Collected)
	}
	if exp.Uncollectable != nil && result.Uncollectable != *exp.Uncollectable {
		return fmt.Errorf("%d uncollectable objects, want %d", result.Uncollectable, *exp.Uncollectable)
	}
	for _, name := range exp.Alive {
		if !store.Valid(ids[name]) {
			return fmt.Errorf("object %q should be alive", name)
		}
	}
	for _, name := range exp.Dead {
		if store.Valid(ids[name]) {
			return fmt.Errorf("object %q should be dead", name)
		}
	}
	return nil
}
