// Package rules holds the detection rule catalogue and the one
// evaluator every waste scenario runs through. Scenarios are data
// values, not code branches.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skimworks/skim/confidence"
	"github.com/skimworks/skim/types"
)

// Catalog is a versioned set of detection rules, supplied as
// configuration and loadable without code changes
type Catalog struct {
	Version string                `yaml:"version"`
	Rules   []types.DetectionRule `yaml:"rules"`
}

// LoadCatalog reads and validates a rule catalogue from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read rule catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse rule catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule catalog: %w", err)
	}
	return &catalog, nil
}

// ForFamily returns the rules that apply to one resource family
func (c *Catalog) ForFamily(family types.Family) []types.DetectionRule {
	var matched []types.DetectionRule
	for _, rule := range c.Rules {
		if rule.Family == family {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Validate rejects catalogues a scan could not interpret
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	seen := map[string]bool{}
	for i, rule := range c.Rules {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.RuleID, err)
		}
		if seen[rule.RuleID] {
			return fmt.Errorf("duplicate rule_id %s", rule.RuleID)
		}
		seen[rule.RuleID] = true
	}
	return nil
}

func validateRule(rule types.DetectionRule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("rule_id is required")
	}
	if !knownFamily(rule.Family) {
		return fmt.Errorf("unknown family %q", rule.Family)
	}
	if rule.Recommendation == "" {
		return fmt.Errorf("recommendation is required")
	}
	if rule.MinAgeDays < 0 {
		return fmt.Errorf("min_age_days must not be negative")
	}
	if len(rule.Predicates) == 0 && len(rule.Metrics) == 0 {
		return fmt.Errorf("rule needs at least one predicate or metric requirement")
	}

	for _, p := range rule.Predicates {
		if err := validatePredicate(p); err != nil {
			return err
		}
	}
	if err := validateMetrics(rule.Metrics); err != nil {
		return err
	}
	if err := validateWaste(rule.Waste); err != nil {
		return err
	}
	return confidence.ValidateBands(rule.Confidence)
}

func validatePredicate(p types.Predicate) error {
	if p.Attr == "" {
		return fmt.Errorf("predicate missing attr")
	}
	switch p.Op {
	case types.OpEqual, types.OpNotEqual, types.OpLessThan, types.OpLessOrEqual,
		types.OpGreaterThan, types.OpGreaterEqual, types.OpExists, types.OpAbsent:
		return nil
	}
	return fmt.Errorf("predicate %s: unknown op %q", p.Attr, p.Op)
}

func validateMetrics(reqs []types.MetricRequirement) error {
	names := map[string]bool{}
	for _, req := range reqs {
		if req.Name == "" || req.Metric == "" || req.Namespace == "" {
			return fmt.Errorf("metric requirement needs name, namespace and metric")
		}
		if names[req.Name] {
			return fmt.Errorf("duplicate metric requirement name %s", req.Name)
		}
		names[req.Name] = true

		if req.WindowDays <= 0 {
			return fmt.Errorf("metric %s: window_days must be positive", req.Name)
		}
		switch req.Stat {
		case types.StatSum, types.StatAverage, types.StatMaximum, types.StatP99:
		default:
			return fmt.Errorf("metric %s: unknown stat %q", req.Name, req.Stat)
		}
		switch req.Op {
		case types.OpLessThan, types.OpLessOrEqual, types.OpGreaterThan,
			types.OpGreaterEqual, types.OpEqual:
		default:
			return fmt.Errorf("metric %s: unknown op %q", req.Name, req.Op)
		}
	}

	for _, req := range reqs {
		if req.RatioOf != "" && !names[req.RatioOf] {
			return fmt.Errorf("metric %s: ratio_of references unknown requirement %q", req.Name, req.RatioOf)
		}
	}
	return nil
}

func validateWaste(spec types.WasteSpec) error {
	switch spec.Action {
	case types.WasteDelete:
		return nil
	case types.WasteModify:
		if len(spec.Set) == 0 {
			return fmt.Errorf("waste action modify needs set overrides")
		}
		return nil
	case types.WasteScaleUnused:
		if spec.Component == "" || spec.UtilizationKey == "" {
			return fmt.Errorf("waste action scale_unused needs component and utilization_key")
		}
		return nil
	}
	return fmt.Errorf("unknown waste action %q", spec.Action)
}

func knownFamily(family types.Family) bool {
	for _, known := range types.KnownFamilies() {
		if family == known {
			return true
		}
	}
	return false
}
