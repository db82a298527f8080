package types

import (
	"fmt"
	"time"
)

// Statistic names a supported aggregation over a metric window
type Statistic string

const (
	StatSum     Statistic = "sum"
	StatAverage Statistic = "avg"
	StatMaximum Statistic = "max"
	StatP99     Statistic = "p99"
)

// Window bounds a metric query in time
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MetricQuery asks the metric source for one statistic over one window
type MetricQuery struct {
	ResourceID string            `json:"resource_id"`
	Namespace  string            `json:"namespace"`
	MetricName string            `json:"metric_name"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Stat       Statistic         `json:"stat"`
	Window     Window            `json:"window"`
	Period     time.Duration     `json:"period"`
}

// Key identifies a query inside a batch result map
func (q MetricQuery) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		q.ResourceID, q.Namespace, q.MetricName, q.Stat,
		q.Window.Start.Unix(), q.Window.End.Unix())
}

// MetricPoint is one datapoint of a series
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries is the ordered, possibly gappy, answer to one MetricQuery.
// An empty Points slice means no data was available for the window,
// which is not the same thing as zero traffic.
type MetricSeries struct {
	Query    MetricQuery   `json:"query"`
	Points   []MetricPoint `json:"points"`
	Stat     Statistic     `json:"stat"`
	Fallback bool          `json:"fallback,omitempty"`
}

// Empty reports whether the backend returned no datapoints at all
func (s MetricSeries) Empty() bool {
	return len(s.Points) == 0
}

// Aggregate collapses the series using its statistic.
// Sum adds datapoints; every other statistic takes the worst case
// across datapoints, which is what the detection rules compare against.
func (s MetricSeries) Aggregate() (float64, bool) {
	if s.Empty() {
		return 0, false
	}
	switch s.Stat {
	case StatSum:
		var total float64
		for _, p := range s.Points {
			total += p.Value
		}
		return total, true
	case StatAverage:
		var total float64
		for _, p := range s.Points {
			total += p.Value
		}
		return total / float64(len(s.Points)), true
	default:
		max := s.Points[0].Value
		for _, p := range s.Points[1:] {
			if p.Value > max {
				max = p.Value
			}
		}
		return max, true
	}
}
