package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/skimworks/skim/types"
)

// ErrInsufficientData marks a rule skipped because required metric
// history was missing or too thin. Absence of evidence is not
// evidence of waste: a skipped rule never matches.
var ErrInsufficientData = errors.New("insufficient metric data")

const defaultPeriod = 24 * time.Hour

// Requirements expands a rule's metric requirements into the queries
// the metric source must answer before the rule can be evaluated.
// The reference time anchors every window so a rerun over the same
// state asks the same questions.
func Requirements(rule types.DetectionRule, resource types.Resource, ref time.Time) []types.MetricQuery {
	queries := make([]types.MetricQuery, 0, len(rule.Metrics))
	for _, req := range rule.Metrics {
		period := defaultPeriod
		if req.PeriodMinutes > 0 {
			period = time.Duration(req.PeriodMinutes) * time.Minute
		}
		queries = append(queries, types.MetricQuery{
			ResourceID: resource.ID,
			Namespace:  req.Namespace,
			MetricName: req.Metric,
			Dimensions: resolveDimensions(req.Dimensions, resource),
			Stat:       req.Stat,
			Window: types.Window{
				Start: ref.AddDate(0, 0, -req.WindowDays),
				End:   ref,
			},
			Period: period,
		})
	}
	return queries
}

// resolveDimensions substitutes $id, $name and attr: references so
// one rule can query any resource of its family
func resolveDimensions(dims map[string]string, resource types.Resource) map[string]string {
	if len(dims) == 0 {
		return nil
	}
	resolved := make(map[string]string, len(dims))
	for name, value := range dims {
		switch {
		case value == "$id":
			resolved[name] = resource.ID
		case value == "$name":
			resolved[name] = resource.Name
		case len(value) > 5 && value[:5] == "attr:":
			if attr, ok := resource.Attr(value[5:]); ok {
				resolved[name] = attr.String()
			}
		default:
			resolved[name] = value
		}
	}
	return resolved
}

// Evaluate applies one rule to one resource snapshot plus its fetched
// metric series, keyed by requirement name. A nil result means no
// match; ErrInsufficientData means the rule was skipped, not failed.
//
// Order matters: the age gate runs first so young resources are never
// evaluated, then metadata predicates, then metric thresholds. All
// conditions are AND.
func Evaluate(rule types.DetectionRule, resource types.Resource, series map[string]types.MetricSeries, now time.Time) (*types.MatchResult, error) {
	ageDays := resource.AgeDays(now)
	if ageDays < rule.MinAgeDays {
		return nil, nil
	}

	evidence := map[string]types.Value{}

	for _, predicate := range rule.Predicates {
		ok, err := evalPredicate(predicate, resource, evidence)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	for _, req := range rule.Metrics {
		ok, err := evalMetric(req, series, evidence)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	return &types.MatchResult{
		Rule:           rule,
		Resource:       resource,
		Evidence:       evidence,
		AnomalyAgeDays: ageDays,
	}, nil
}

func evalPredicate(p types.Predicate, resource types.Resource, evidence map[string]types.Value) (bool, error) {
	attr, exists := resource.Attr(p.Attr)

	switch p.Op {
	case types.OpExists:
		if exists {
			evidence[p.Attr] = attr
		}
		return exists, nil
	case types.OpAbsent:
		if !exists {
			evidence[p.Attr+"_absent"] = types.Boolean(true)
		}
		return !exists, nil
	}

	if !exists {
		return false, nil
	}
	evidence[p.Attr] = attr

	switch p.Op {
	case types.OpEqual:
		return attr.Equal(p.Value), nil
	case types.OpNotEqual:
		return !attr.Equal(p.Value), nil
	}

	// Ordering comparisons only make sense on numbers, strictly typed
	left, okL := attr.AsNumber()
	right, okR := p.Value.AsNumber()
	if !okL || !okR {
		return false, fmt.Errorf("predicate %s: op %s needs numeric operands", p.Attr, p.Op)
	}
	return compareNumbers(left, p.Op, right)
}

func evalMetric(req types.MetricRequirement, series map[string]types.MetricSeries, evidence map[string]types.Value) (bool, error) {
	value, err := metricValue(req, series)
	if err != nil {
		return false, err
	}
	evidence[req.Name] = types.Number(value)

	s := series[req.Name]
	if s.Fallback {
		evidence[req.Name+"_statistic_fallback"] = types.String(string(s.Stat))
	}

	return compareNumbers(value, req.Op, req.Threshold)
}

// metricValue aggregates one requirement's series, dividing by the
// ratio_of denominator when configured. A zero denominator is
// insufficient data, never a division.
func metricValue(req types.MetricRequirement, series map[string]types.MetricSeries) (float64, error) {
	s, ok := series[req.Name]
	if !ok {
		return 0, fmt.Errorf("metric %s: %w", req.Name, ErrInsufficientData)
	}
	value, ok := s.Aggregate()
	if !ok {
		return 0, fmt.Errorf("metric %s: %w", req.Name, ErrInsufficientData)
	}

	if req.RatioOf == "" {
		return value, nil
	}

	denomSeries, ok := series[req.RatioOf]
	if !ok {
		return 0, fmt.Errorf("metric %s denominator %s: %w", req.Name, req.RatioOf, ErrInsufficientData)
	}
	denom, ok := denomSeries.Aggregate()
	if !ok || denom == 0 {
		return 0, fmt.Errorf("metric %s denominator %s is zero: %w", req.Name, req.RatioOf, ErrInsufficientData)
	}
	return value / denom * 100, nil
}

// compareNumbers applies the rule's declared comparison exactly as
// written, with no implicit rounding
func compareNumbers(left float64, op types.CompareOp, right float64) (bool, error) {
	switch op {
	case types.OpEqual:
		return left == right, nil
	case types.OpLessThan:
		return left < right, nil
	case types.OpLessOrEqual:
		return left <= right, nil
	case types.OpGreaterThan:
		return left > right, nil
	case types.OpGreaterEqual:
		return left >= right, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", op)
}
