package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/skimworks/skim/types"
)

// LogicError marks a cost-model contradiction, like a remediation
// that would cost more than the status quo. Never surfaced as a
// recommendation.
type LogicError struct {
	RuleID     string
	ResourceID string
	Reason     string
}

func (e *LogicError) Error() string {
	return fmt.Sprintf("cost model logic error for %s/%s: %s", e.RuleID, e.ResourceID, e.Reason)
}

// WasteEstimate is the priced outcome of a rule match
type WasteEstimate struct {
	MonthlyCost    MonthlyCost     `json:"monthly_cost"`
	SuggestedCost  decimal.Decimal `json:"suggested_cost"`
	MonthlySavings decimal.Decimal `json:"monthly_savings"`
	AlreadyWasted  decimal.Decimal `json:"already_wasted"`
}

// EstimateWaste prices a match: current monthly cost, the savings the
// rule's remediation would free, and the cumulative amount already
// wasted under the linear accrual model
//
//	alreadyWasted = anomalyAgeDays / 30 × monthlySavings
//
// Savings must come out strictly positive; anything else is a
// LogicError and the match must be dropped, not emitted.
func EstimateWaste(match *types.MatchResult, table *Table) (WasteEstimate, error) {
	current, err := Estimate(match.Resource.Family, match.Resource.Attributes, table)
	if err != nil {
		return WasteEstimate{}, err
	}

	savings, err := remediationSavings(match, current, table)
	if err != nil {
		return WasteEstimate{}, err
	}

	if !savings.IsPositive() {
		return WasteEstimate{}, &LogicError{
			RuleID:     match.Rule.RuleID,
			ResourceID: match.Resource.ID,
			Reason:     fmt.Sprintf("non-positive savings %s", savings),
		}
	}

	accrued := decimal.NewFromInt(int64(match.AnomalyAgeDays)).
		Div(decimal.NewFromInt(30)).
		Mul(savings)

	return WasteEstimate{
		MonthlyCost:    current,
		SuggestedCost:  current.Total().Sub(savings),
		MonthlySavings: savings,
		AlreadyWasted:  accrued,
	}, nil
}

func remediationSavings(match *types.MatchResult, current MonthlyCost, table *Table) (decimal.Decimal, error) {
	spec := match.Rule.Waste

	switch spec.Action {
	case types.WasteDelete:
		return current.Total(), nil

	case types.WasteModify:
		modified, err := Estimate(match.Resource.Family, overrideAttrs(match.Resource.Attributes, spec.Set), table)
		if err != nil {
			return decimal.Zero, err
		}
		return current.Total().Sub(modified.Total()), nil

	case types.WasteScaleUnused:
		return unusedShare(match, current, spec)

	default:
		return decimal.Zero, fmt.Errorf("rule %s: unknown waste action %q", match.Rule.RuleID, spec.Action)
	}
}

// unusedShare frees the idle fraction of one cost component, using
// the utilization the evaluator recorded as evidence
func unusedShare(match *types.MatchResult, current MonthlyCost, spec types.WasteSpec) (decimal.Decimal, error) {
	evidence, ok := match.Evidence[spec.UtilizationKey]
	if !ok {
		return decimal.Zero, fmt.Errorf("rule %s: no %q evidence for scale_unused",
			match.Rule.RuleID, spec.UtilizationKey)
	}
	utilization, ok := evidence.AsNumber()
	if !ok || utilization < 0 || utilization > 1 {
		return decimal.Zero, fmt.Errorf("rule %s: utilization evidence %s out of range",
			match.Rule.RuleID, evidence)
	}

	component := current.Component(spec.Component)
	unused := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(utilization))
	return component.Mul(unused).Round(2), nil
}

func overrideAttrs(attrs map[string]types.Value, overrides map[string]types.Value) map[string]types.Value {
	merged := make(map[string]types.Value, len(attrs))
	for k, v := range attrs {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
