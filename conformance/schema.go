package conformance

// Suite represents a complete YAML scenario file.
type Suite struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Scenarios   []Scenario `yaml:"scenarios"`
}

// Scenario builds an object graph, drops the external references not
// named in roots, runs a collection, and checks the outcome.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Skip        interface{} `yaml:"skip,omitempty"` // bool or reason string

	// Objects names the objects to allocate. Every object starts with
	// one external reference (its creator's).
	Objects []string `yaml:"objects"`

	// Refs adds references between named objects. A ref with a field
	// name sets that field; without one it appends an element.
	Refs []Ref `yaml:"refs"`

	// Roots keep their creator reference through the collection;
	// everything else has it released first.
	Roots []string `yaml:"roots,omitempty"`

	// Unclearable marks objects that refuse to clear their references.
	Unclearable []string `yaml:"unclearable,omitempty"`

	// Collect selects the generation to collect: "full" (default) or a
	// generation number.
	Collect string `yaml:"collect,omitempty"`

	Expect Expectation `yaml:"expect"`
}

// Ref is one reference edge in the scenario graph.
type Ref struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Field string `yaml:"field,omitempty"`
}

// Expectation defines the checked outcome of a scenario.
type Expectation struct {
	// Collected is the expected reclaim count from the collection run.
	Collected *int `yaml:"collected,omitempty"`

	// Uncollectable is the expected number of objects parked by the run.
	Uncollectable *int `yaml:"uncollectable,omitempty"`

	// Alive and Dead name objects whose liveness is checked after the
	// run.
	Alive []string `yaml:"alive,omitempty"`
	Dead  []string `yaml:"dead,omitempty"`
}

// IsSkipped reports whether the scenario is disabled and why.
func (sc *Scenario) IsSkipped() (bool, string) {
	switch v := sc.Skip.(type) {
	case bool:
		if v {
			return true, "skipped"
		}
	case string:
		return true, v
	}
	return false, ""
}
