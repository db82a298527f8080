package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// GetMetricData accepts at most 500 queries per call
const maxQueriesPerCall = 500

// CloudWatchAPI is the slice of the CloudWatch client the source uses
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// Pacer throttles and tunes outbound API calls per (account, api)
type Pacer interface {
	Wait(ctx context.Context, account, api string) error
	Feedback(account, api string, throttled bool)
}

// CloudWatchSource answers metric queries via GetMetricData, batching
// queries per window to keep call volume down. Throttling is the
// dominant operational constraint, so every call goes through the
// pacer and the shared backoff policy.
type CloudWatchSource struct {
	client  CloudWatchAPI
	account string
	pacer   Pacer
	policy  retry.Policy
	cache   *seriesCache
}

// Option configures a CloudWatchSource
type Option func(*CloudWatchSource)

// WithPacer routes calls through a rate-limit registry
func WithPacer(pacer Pacer) Option {
	return func(s *CloudWatchSource) { s.pacer = pacer }
}

// WithCacheTTL enables the private series cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *CloudWatchSource) { s.cache = newSeriesCache(ttl, nil) }
}

// WithRetryPolicy overrides the default backoff policy
func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *CloudWatchSource) { s.policy = policy }
}

// NewCloudWatchSource creates a metric source for one account
func NewCloudWatchSource(client CloudWatchAPI, account string, opts ...Option) *CloudWatchSource {
	s := &CloudWatchSource{
		client:  client,
		account: account,
		policy:  retry.DefaultPolicy(),
		cache:   newSeriesCache(0, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query answers a single metric query
func (s *CloudWatchSource) Query(ctx context.Context, q types.MetricQuery) (types.MetricSeries, error) {
	results, err := s.QueryBatch(ctx, []types.MetricQuery{q})
	if err != nil {
		return types.MetricSeries{}, err
	}
	return results[q.Key()], nil
}

// QueryBatch groups queries by window and resolves each group with
// as few GetMetricData calls as possible
func (s *CloudWatchSource) QueryBatch(ctx context.Context, queries []types.MetricQuery) (map[string]types.MetricSeries, error) {
	results := make(map[string]types.MetricSeries, len(queries))

	var misses []types.MetricQuery
	for _, q := range queries {
		if series, ok := s.cache.get(q.Key()); ok {
			results[q.Key()] = series
			continue
		}
		misses = append(misses, q)
	}

	for _, group := range groupByWindow(misses) {
		if err := s.fetchGroup(ctx, group, results); err != nil {
			return nil, err
		}
	}

	for _, q := range misses {
		if series, ok := results[q.Key()]; ok {
			s.cache.put(q.Key(), series)
		}
	}
	return results, nil
}

func groupByWindow(queries []types.MetricQuery) [][]types.MetricQuery {
	byWindow := map[types.Window][]types.MetricQuery{}
	for _, q := range queries {
		byWindow[q.Window] = append(byWindow[q.Window], q)
	}

	groups := make([][]types.MetricQuery, 0, len(byWindow))
	for _, group := range byWindow {
		for len(group) > maxQueriesPerCall {
			groups = append(groups, group[:maxQueriesPerCall])
			group = group[maxQueriesPerCall:]
		}
		groups = append(groups, group)
	}
	return groups
}

func (s *CloudWatchSource) fetchGroup(ctx context.Context, group []types.MetricQuery, results map[string]types.MetricSeries) error {
	output, err := s.getMetricData(ctx, group, nil)
	if err != nil {
		return err
	}

	var fallbacks []types.MetricQuery
	for i, q := range group {
		series := types.MetricSeries{Query: q, Stat: q.Stat, Points: output[i]}
		if series.Empty() && q.Stat == types.StatP99 {
			fallbacks = append(fallbacks, q)
			continue
		}
		results[q.Key()] = series
	}

	return s.fetchFallbacks(ctx, fallbacks, results)
}

// fetchFallbacks retries p99 queries with max when the percentile is
// unavailable for the window; the substitution is recorded on the
// series so it ends up in finding evidence
func (s *CloudWatchSource) fetchFallbacks(ctx context.Context, queries []types.MetricQuery, results map[string]types.MetricSeries) error {
	if len(queries) == 0 {
		return nil
	}

	stat := types.StatMaximum
	output, err := s.getMetricData(ctx, queries, &stat)
	if err != nil {
		return err
	}

	for i, q := range queries {
		results[q.Key()] = types.MetricSeries{
			Query:    q,
			Stat:     types.StatMaximum,
			Points:   output[i],
			Fallback: true,
		}
	}
	return nil
}

// getMetricData issues one paginated GetMetricData call under the
// pacer and the shared backoff policy. Exhausted retries surface as
// ErrMetricUnavailable.
func (s *CloudWatchSource) getMetricData(ctx context.Context, group []types.MetricQuery, statOverride *types.Statistic) ([][]types.MetricPoint, error) {
	input := buildInput(group, statOverride)
	points := make([][]types.MetricPoint, len(group))

	err := retry.Do(ctx, s.policy, func() error {
		if s.pacer != nil {
			if err := s.pacer.Wait(ctx, s.account, "cloudwatch"); err != nil {
				return err
			}
		}

		collected, callErr := s.collectPages(ctx, input, len(group))
		if s.pacer != nil {
			s.pacer.Feedback(s.account, "cloudwatch", retry.IsThrottling(callErr))
		}
		if callErr != nil {
			return callErr
		}
		points = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetricUnavailable, err)
	}
	return points, nil
}

func (s *CloudWatchSource) collectPages(ctx context.Context, input *cloudwatch.GetMetricDataInput, n int) ([][]types.MetricPoint, error) {
	points := make([][]types.MetricPoint, n)

	paginator := cloudwatch.NewGetMetricDataPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, result := range page.MetricDataResults {
			idx, err := queryIndex(result.Id)
			if err != nil || idx >= n {
				continue
			}
			for i, ts := range result.Timestamps {
				points[idx] = append(points[idx], types.MetricPoint{
					Timestamp: ts,
					Value:     result.Values[i],
				})
			}
		}
	}
	return points, nil
}

func buildInput(group []types.MetricQuery, statOverride *types.Statistic) *cloudwatch.GetMetricDataInput {
	window := group[0].Window

	dataQueries := make([]cwtypes.MetricDataQuery, 0, len(group))
	for i, q := range group {
		stat := q.Stat
		if statOverride != nil {
			stat = *statOverride
		}

		dimensions := make([]cwtypes.Dimension, 0, len(q.Dimensions))
		for name, value := range q.Dimensions {
			dimensions = append(dimensions, cwtypes.Dimension{
				Name:  aws.String(name),
				Value: aws.String(value),
			})
		}

		dataQueries = append(dataQueries, cwtypes.MetricDataQuery{
			Id: aws.String(fmt.Sprintf("q%d", i)),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(q.Namespace),
					MetricName: aws.String(q.MetricName),
					Dimensions: dimensions,
				},
				Period: aws.Int32(int32(q.Period / time.Second)),
				Stat:   aws.String(statName(stat)),
			},
			ReturnData: aws.Bool(true),
		})
	}

	return &cloudwatch.GetMetricDataInput{
		StartTime:         aws.Time(window.Start),
		EndTime:           aws.Time(window.End),
		MetricDataQueries: dataQueries,
		ScanBy:            cwtypes.ScanByTimestampAscending,
	}
}

func statName(stat types.Statistic) string {
	switch stat {
	case types.StatSum:
		return "Sum"
	case types.StatAverage:
		return "Average"
	case types.StatMaximum:
		return "Maximum"
	case types.StatP99:
		return "p99"
	}
	return "Average"
}

func queryIndex(id *string) (int, error) {
	if id == nil || len(*id) < 2 {
		return 0, fmt.Errorf("missing query id")
	}
	var idx int
	if _, err := fmt.Sscanf(*id, "q%d", &idx); err != nil {
		return 0, err
	}
	return idx, nil
}
