// Package config loads collector tuning from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"compost/gc"
)

// Config is the on-disk tuning file.
type Config struct {
	// Thresholds are per-generation trigger counts, youngest first.
	// Omitted or zero entries keep the collector defaults.
	Thresholds []int `yaml:"thresholds"`

	// AutoCollect enables allocation-triggered collection.
	AutoCollect bool `yaml:"auto_collect"`

	// Verbose logs a line per collection run.
	Verbose bool `yaml:"verbose"`

	// Stress tunes the cmd/compost workload generator.
	Stress StressConfig `yaml:"stress"`
}

// StressConfig shapes the synthetic workload run by cmd/compost.
type StressConfig struct {
	// Objects is the total number of objects to allocate.
	Objects int `yaml:"objects"`

	// CycleEvery links every Nth batch of objects into a reference
	// cycle and drops the external references, producing cyclic
	// garbage only the collector can reclaim. Zero disables cycles.
	CycleEvery int `yaml:"cycle_every"`

	// CycleLen is the length of each generated cycle.
	CycleLen int `yaml:"cycle_len"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AutoCollect: true,
		Stress: StressConfig{
			Objects:    10000,
			CycleEvery: 10,
			CycleLen:   3,
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values. Callers
// that modify a loaded configuration, such as the CLI applying flag
// overrides, must validate again before use.
func (c *Config) Validate() error {
	if len(c.Thresholds) > gc.NumGenerations {
		return fmt.Errorf("%d thresholds given, at most %d generations exist",
			len(c.Thresholds), gc.NumGenerations)
	}
	for i, t := range c.Thresholds {
		if t < 0 {
			return fmt.Errorf("threshold for generation %d is negative", i)
		}
	}
	if c.Stress.Objects < 0 || c.Stress.CycleEvery < 0 {
		return fmt.Errorf("stress counts must not be negative")
	}
	if c.Stress.CycleEvery > 0 && c.Stress.CycleLen < 1 {
		return fmt.Errorf("cycle_len must be at least 1 when cycles are enabled")
	}
	return nil
}

// Options converts the configuration into collector options.
func (c *Config) Options() gc.Options {
	opts := gc.DefaultOptions()
	opts.AutoCollect = c.AutoCollect
	opts.Verbose = c.Verbose
	for i, t := range c.Thresholds {
		if t > 0 {
			opts.Thresholds[i] = t
		}
	}
	return opts
}
