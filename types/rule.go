package types

// CompareOp is a strict numeric or scalar comparison, no implicit rounding
type CompareOp string

const (
	OpEqual        CompareOp = "eq"
	OpNotEqual     CompareOp = "ne"
	OpLessThan     CompareOp = "lt"
	OpLessOrEqual  CompareOp = "le"
	OpGreaterThan  CompareOp = "gt"
	OpGreaterEqual CompareOp = "ge"
	OpExists       CompareOp = "exists"
	OpAbsent       CompareOp = "absent"
)

// Predicate is a pure check over resource attributes
type Predicate struct {
	Attr  string    `yaml:"attr" json:"attr"`
	Op    CompareOp `yaml:"op" json:"op"`
	Value Value     `yaml:"value,omitempty" json:"value,omitempty"`
}

// MetricRequirement names a metric, how to aggregate it, and the
// threshold its aggregate must satisfy for the rule to match.
// RatioOf, when set, divides this metric's aggregate by the named
// requirement's aggregate and compares the percentage instead.
type MetricRequirement struct {
	Name          string            `yaml:"name" json:"name"`
	Namespace     string            `yaml:"namespace" json:"namespace"`
	Metric        string            `yaml:"metric" json:"metric"`
	Dimensions    map[string]string `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Stat          Statistic         `yaml:"stat" json:"stat"`
	WindowDays    int               `yaml:"window_days" json:"window_days"`
	PeriodMinutes int               `yaml:"period_minutes,omitempty" json:"period_minutes,omitempty"`
	Op            CompareOp         `yaml:"op" json:"op"`
	Threshold     float64           `yaml:"threshold" json:"threshold"`
	RatioOf       string            `yaml:"ratio_of,omitempty" json:"ratio_of,omitempty"`
}

// WasteAction says how a matched rule's savings are derived
type WasteAction string

const (
	// WasteDelete frees the full monthly cost of the resource
	WasteDelete WasteAction = "delete"
	// WasteModify reprices the resource with overridden attributes
	WasteModify WasteAction = "modify"
	// WasteScaleUnused frees the unused share of one cost component
	WasteScaleUnused WasteAction = "scale_unused"
)

// WasteSpec is the data half of the cost model: which action the
// remediation takes and the inputs its savings formula needs
type WasteSpec struct {
	Action WasteAction `yaml:"action" json:"action"`
	// Set overrides attributes for the repriced configuration (modify)
	Set map[string]Value `yaml:"set,omitempty" json:"set,omitempty"`
	// Component restricts the savings to one cost component (scale_unused)
	Component string `yaml:"component,omitempty" json:"component,omitempty"`
	// UtilizationKey names the evidence entry holding the used fraction,
	// 0..1, for scale_unused
	UtilizationKey string `yaml:"utilization_key,omitempty" json:"utilization_key,omitempty"`
}

// ConfidenceBand maps a minimum anomaly age to a confidence level
type ConfidenceBand struct {
	MinAgeDays int             `yaml:"min_age_days" json:"min_age_days"`
	Level      ConfidenceLevel `yaml:"level" json:"level"`
}

// DetectionRule is one waste scenario as data. The catalogue of
// scenarios is a list of these, interpreted by a single evaluator.
type DetectionRule struct {
	RuleID         string              `yaml:"rule_id" json:"rule_id"`
	Family         Family              `yaml:"family" json:"family"`
	Description    string              `yaml:"description,omitempty" json:"description,omitempty"`
	Recommendation string              `yaml:"recommendation" json:"recommendation"`
	MinAgeDays     int                 `yaml:"min_age_days" json:"min_age_days"`
	Predicates     []Predicate         `yaml:"predicates,omitempty" json:"predicates,omitempty"`
	Metrics        []MetricRequirement `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Waste          WasteSpec           `yaml:"waste" json:"waste"`
	Confidence     []ConfidenceBand    `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// MatchResult carries the evidence a rule matched on. A finding is
// only ever assembled from one of these, never from a bare boolean.
type MatchResult struct {
	Rule           DetectionRule    `json:"rule"`
	Resource       Resource         `json:"resource"`
	Evidence       map[string]Value `json:"evidence"`
	AnomalyAgeDays int              `json:"anomaly_age_days"`
}
