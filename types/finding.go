package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConfidenceLevel is an ordinal reflecting how long an anomaly persisted
type ConfidenceLevel string

const (
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceCritical ConfidenceLevel = "critical"
)

// Rank orders confidence levels for monotonicity checks
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	case ConfidenceCritical:
		return 3
	}
	return -1
}

// Valid reports whether the level is one of the four known ordinals
func (c ConfidenceLevel) Valid() bool {
	return c.Rank() >= 0
}

// FindingStatus tracks a finding through its lifecycle
type FindingStatus string

const (
	FindingOpen   FindingStatus = "open"
	FindingClosed FindingStatus = "closed"
)

// Finding is the output of a successful rule match: cost, confidence
// and the evidence that produced it
type Finding struct {
	ResourceID     string           `json:"resource_id"`
	RuleID         string           `json:"rule_id"`
	Family         Family           `json:"family"`
	Account        string           `json:"account"`
	Region         string           `json:"region"`
	Status         FindingStatus    `json:"status"`
	MatchedAt      time.Time        `json:"matched_at"`
	FirstSeenAt    time.Time        `json:"first_seen_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	Evidence       map[string]Value `json:"evidence"`
	MonthlyCost    decimal.Decimal  `json:"monthly_cost"`
	MonthlySavings decimal.Decimal  `json:"monthly_savings"`
	AlreadyWasted  decimal.Decimal  `json:"already_wasted"`
	Confidence     ConfidenceLevel  `json:"confidence"`
	Recommendation string           `json:"recommendation"`
}

// Key identifies a finding across scans for reconciliation
func (f Finding) Key() string {
	return f.ResourceID + "|" + f.RuleID
}

// FindingKey builds the reconciliation key without a Finding value
func FindingKey(resourceID, ruleID string) string {
	return resourceID + "|" + ruleID
}
