package conformance

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadedScenario pairs a scenario with the file it came from.
type LoadedScenario struct {
	File     string
	Suite    string
	Scenario Scenario
}

// LoadAll loads every scenario from the .yaml files under dir.
func LoadAll(dir string) ([]LoadedScenario, error) {
	var loaded []LoadedScenario

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".yaml" {
			return nil
		}
		scenarios, err := loadFile(path)
		if err != nil {
			return err
		}
		loaded = append(loaded, scenarios...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

func loadFile(path string) ([]LoadedScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var loaded []LoadedScenario
	for _, sc := range suite.Scenarios {
		if err := validate(&sc); err != nil {
			return nil, fmt.Errorf("%s: scenario %q: %w", path, sc.Name, err)
		}
		loaded = append(loaded, LoadedScenario{
			File:     filepath.Base(path),
			Suite:    suite.Name,
			Scenario: sc,
		})
	}
	return loaded, nil
}

// validate checks that every name a scenario mentions is declared.
func validate(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("missing name")
	}
	declared := make(map[string]bool, len(sc.Objects))
	for _, name := range sc.Objects {
		if declared[name] {
			return fmt.Errorf("object %q declared twice", name)
		}
		declared[name] = true
	}
	for _, ref := range sc.Refs {
		if !declared[ref.From] {
			return fmt.Errorf("ref from undeclared object %q", ref.From)
		}
		if !declared[ref.To] {
			return fmt.Errorf("ref to undeclared object %q", ref.To)
		}
	}
	for _, name := range append(append(append([]string{}, sc.Roots...), sc.Unclearable...),
		append(sc.Expect.Alive, sc.Expect.Dead...)...) {
		if !declared[name] {
			return fmt.Errorf("undeclared object %q", name)
		}
	}
	return nil
}
