package rules

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// RuleSet is a named collection of law definitions.
type RuleSet struct {
	Version string    `yaml:"version" json:"version"`
	Name    string    `yaml:"name" json:"name"`
	Laws    []LawSpec `yaml:"laws" json:"laws"`
}

// LawSpec declares one law.
type LawSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Store     string         `yaml:"store" json:"store"`
	Message   string         `yaml:"message,omitempty" json:"message,omitempty"`
	Expr      string         `yaml:"expr,omitempty" json:"expr,omitempty"`
	Schema    string         `yaml:"schema,omitempty" json:"schema,omitempty"`
	Repair    string         `yaml:"repair,omitempty" json:"repair,omitempty"`
	Reactions []ReactionSpec `yaml:"reactions,omitempty" json:"reactions,omitempty"`
}

// ReactionSpec declares one reaction of a law.
type ReactionSpec struct {
	Target  string `yaml:"target" json:"target"`
	Compute string `yaml:"compute" json:"compute"`
}

// Parse decodes a rule-set. Unknown fields are rejected.
func Parse(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("parse rule-set: %w", err)
	}
	return &rs, nil
}

// Load reads and parses the rule-set at path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule-set: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// StoreKeys returns every store key the rule-set mentions, as a bound store
// or a reaction target, sorted and deduplicated.
func (rs *RuleSet) StoreKeys() []string {
	var keys []string
	for _, l := range rs.Laws {
		if l.Store != "" {
			keys = append(keys, l.Store)
		}
		for _, r := range l.Reactions {
			if r.Target != "" {
				keys = append(keys, r.Target)
			}
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
