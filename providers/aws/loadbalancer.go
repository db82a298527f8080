package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// DescribeTags accepts at most 20 ARNs per call
const maxTagARNsPerCall = 20

// ELBAPI is the slice of the ELBv2 client the collector uses
type ELBAPI interface {
	elbv2.DescribeLoadBalancersAPIClient
	elbv2.DescribeTargetGroupsAPIClient
	DescribeTags(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error)
}

// LoadBalancerCollector inventories application and network load
// balancers
type LoadBalancerCollector struct {
	base
	client ELBAPI
}

// NewLoadBalancerCollector creates a collector for load balancers
func NewLoadBalancerCollector(client ELBAPI, pacer Pacer, policy retry.Policy) *LoadBalancerCollector {
	return &LoadBalancerCollector{base: base{pacer: pacer, policy: policy}, client: client}
}

// Family implements collector.Collector
func (c *LoadBalancerCollector) Family() types.Family { return types.FamilyLoadBalancer }

// List implements collector.Collector
func (c *LoadBalancerCollector) List(ctx context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	balancers, err := c.describeBalancers(ctx, unit)
	if err != nil {
		return nil, err
	}

	tags, err := c.describeTags(ctx, unit, balancers)
	if err != nil {
		return nil, err
	}

	resources := make([]types.Resource, 0, len(balancers))
	for _, lb := range balancers {
		arn := aws.ToString(lb.LoadBalancerArn)
		targetGroups, err := c.countTargetGroups(ctx, unit, arn)
		if err != nil {
			return nil, err
		}
		resources = append(resources, buildBalancerResource(lb, targetGroups, tags[arn], unit))
	}
	return resources, nil
}

func (c *LoadBalancerCollector) describeBalancers(ctx context.Context, unit types.ScanUnit) ([]elbtypes.LoadBalancer, error) {
	var balancers []elbtypes.LoadBalancer

	paginator := elbv2.NewDescribeLoadBalancersPaginator(c.client, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "elasticloadbalancing", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			balancers = append(balancers, page.LoadBalancers...)
			return nil
		})
		if err != nil {
			return nil, collector.Classify(unit, fmt.Errorf("failed to list load balancers: %w", err))
		}
	}
	return balancers, nil
}

func (c *LoadBalancerCollector) describeTags(ctx context.Context, unit types.ScanUnit, balancers []elbtypes.LoadBalancer) (map[string]map[string]string, error) {
	tags := make(map[string]map[string]string, len(balancers))

	arns := make([]string, 0, len(balancers))
	for _, lb := range balancers {
		arns = append(arns, aws.ToString(lb.LoadBalancerArn))
	}

	for len(arns) > 0 {
		chunk := arns
		if len(chunk) > maxTagARNsPerCall {
			chunk = chunk[:maxTagARNsPerCall]
		}
		arns = arns[len(chunk):]

		var output *elbv2.DescribeTagsOutput
		err := c.call(ctx, unit.Account, "elasticloadbalancing", func() error {
			var callErr error
			output, callErr = c.client.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: chunk})
			return callErr
		})
		if err != nil {
			return nil, collector.Classify(unit, fmt.Errorf("failed to describe tags: %w", err))
		}

		for _, desc := range output.TagDescriptions {
			converted := make(map[string]string, len(desc.Tags))
			for _, tag := range desc.Tags {
				converted[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
			}
			tags[aws.ToString(desc.ResourceArn)] = converted
		}
	}
	return tags, nil
}

func (c *LoadBalancerCollector) countTargetGroups(ctx context.Context, unit types.ScanUnit, arn string) (int, error) {
	var count int

	paginator := elbv2.NewDescribeTargetGroupsPaginator(c.client, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(arn),
	})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "elasticloadbalancing", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			count += len(page.TargetGroups)
			return nil
		})
		if err != nil {
			return 0, collector.Classify(unit, fmt.Errorf("failed to list target groups: %w", err))
		}
	}
	return count, nil
}

func buildBalancerResource(lb elbtypes.LoadBalancer, targetGroups int, tags map[string]string, unit types.ScanUnit) types.Resource {
	arn := aws.ToString(lb.LoadBalancerArn)

	var state string
	if lb.State != nil {
		state = string(lb.State.Code)
	}

	return types.Resource{
		ID:        arn,
		Family:    types.FamilyLoadBalancer,
		Provider:  "aws",
		Account:   unit.Account,
		Region:    unit.Region,
		Name:      aws.ToString(lb.LoadBalancerName),
		CreatedAt: aws.ToTime(lb.CreatedTime),
		Tags:      tags,
		Attributes: map[string]types.Value{
			"arn_suffix":         types.String(arnSuffix(arn)),
			"scheme":             types.String(string(lb.Scheme)),
			"lb_type":            types.String(string(lb.Type)),
			"state":              types.String(state),
			"target_group_count": types.Number(float64(targetGroups)),
		},
	}
}

// arnSuffix extracts the CloudWatch dimension value from a balancer
// ARN, e.g. "app/web/50dc6c495c0c9188"
func arnSuffix(arn string) string {
	_, suffix, found := strings.Cut(arn, ":loadbalancer/")
	if !found {
		return arn
	}
	return suffix
}
