// Package pricing is the cost model: pure functions from resource
// attributes and a pricing table to component-decomposed monthly
// costs. No I/O happens here; tables are loaded up front.
package pricing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/skimworks/skim/types"
)

// Cost component names. Decomposing by component lets waste deltas
// touch only the part a remediation changes.
const (
	ComponentInstanceHours          = "instance_hours"
	ComponentStorageGB              = "storage_gb"
	ComponentProvisionedIOPS        = "provisioned_iops"
	ComponentProvisionedThroughput  = "provisioned_throughput"
	ComponentProvisionedConcurrency = "provisioned_concurrency"
	ComponentControlPlaneHours      = "control_plane_hours"
	ComponentLoadBalancerHours      = "load_balancer_hours"
)

// Billing-month constants: AWS bills hourly services over 730 hours
// and duration-based services over 30 days of seconds.
const (
	HoursPerMonth   = 730
	SecondsPerMonth = 30 * 24 * 3600
)

// MonthlyCost decomposes a monthly cost into named components,
// each rounded to cents
type MonthlyCost struct {
	Components map[string]decimal.Decimal `json:"components"`
}

// NewMonthlyCost returns an empty cost
func NewMonthlyCost() MonthlyCost {
	return MonthlyCost{Components: map[string]decimal.Decimal{}}
}

// Set stores a component rounded to cents
func (c MonthlyCost) Set(component string, amount decimal.Decimal) {
	c.Components[component] = amount.Round(2)
}

// Component returns one component, zero if absent
func (c MonthlyCost) Component(name string) decimal.Decimal {
	return c.Components[name]
}

// Total sums all components
func (c MonthlyCost) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range c.Components {
		total = total.Add(amount)
	}
	return total
}

// Rate is a decimal that knows how to parse itself from a YAML
// scalar, since rates are written as strings to keep them exact
type Rate struct {
	decimal.Decimal
}

// UnmarshalYAML parses the rate from a quoted or bare scalar
func (r *Rate) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse rate %q: %w", raw, err)
	}
	r.Decimal = d
	return nil
}

// Table is the static, versioned pricing table supplied as
// configuration, keyed family then rate name
type Table struct {
	Version string                           `yaml:"version"`
	Region  string                           `yaml:"region,omitempty"`
	Rates   map[types.Family]map[string]Rate `yaml:"rates"`
}

// LoadTable reads a pricing table from a YAML file
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse pricing table: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing table: %w", err)
	}
	return &table, nil
}

// Validate ensures the table has a version and no negative rates
func (t *Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("version is required")
	}
	for family, rates := range t.Rates {
		for name, rate := range rates {
			if rate.IsNegative() {
				return fmt.Errorf("negative rate %s/%s", family, name)
			}
		}
	}
	return nil
}

// Rate looks up one rate, erroring on gaps so a hole in the table
// surfaces as a configuration problem, not a zero-cost estimate
func (t *Table) Rate(family types.Family, name string) (decimal.Decimal, error) {
	rates, ok := t.Rates[family]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rates for family %s", family)
	}
	rate, ok := rates[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate %s for family %s", name, family)
	}
	return rate.Decimal, nil
}
