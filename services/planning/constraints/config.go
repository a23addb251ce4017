// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package constraints

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// RuleConfig tunes one constraint by id.
type RuleConfig struct {
	ID       string `yaml:"id"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Severity string `yaml:"severity,omitempty"`
}

// Config is the YAML shape for constraint tuning.
//
// Example:
//
//	rules:
//	  - id: demand-capacity
//	    severity: error
//	  - id: absence
//	    enabled: false
type Config struct {
	Rules []RuleConfig `yaml:"rules"`
}

// LoadConfig reads a YAML constraint configuration. A missing file is
// not an error; it yields an empty config so the defaults stand.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read constraint config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse constraint config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every rule names a constraint and uses a known
// severity.
func (c *Config) Validate() error {
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d: missing constraint id", i)
		}
		if r.Severity == "" {
			continue
		}
		if datatypes.Severity(r.Severity).Rank() < 0 {
			return fmt.Errorf("rule %q: unknown severity %q", r.ID, r.Severity)
		}
	}
	return nil
}

// ApplyTo applies the configuration to an engine: disable flags first,
// then severity overrides.
func (c *Config) ApplyTo(e *Engine) {
	for _, r := range c.Rules {
		if r.Enabled != nil {
			if *r.Enabled {
				e.Enable(r.ID)
			} else {
				e.Disable(r.ID)
			}
		}
		if r.Severity != "" {
			e.SetSeverity(r.ID, datatypes.Severity(r.Severity))
		}
	}
}
