package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// EKSAPI is the slice of the EKS client the collector uses
type EKSAPI interface {
	eks.ListClustersAPIClient
	eks.ListNodegroupsAPIClient
	eks.ListFargateProfilesAPIClient
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// ClusterCollector inventories EKS clusters along with how much
// compute hangs off them, which is what the empty-cluster rules need
type ClusterCollector struct {
	base
	client EKSAPI
}

// NewClusterCollector creates a collector for container clusters
func NewClusterCollector(client EKSAPI, pacer Pacer, policy retry.Policy) *ClusterCollector {
	return &ClusterCollector{base: base{pacer: pacer, policy: policy}, client: client}
}

// Family implements collector.Collector
func (c *ClusterCollector) Family() types.Family { return types.FamilyContainerOrch }

// List implements collector.Collector
func (c *ClusterCollector) List(ctx context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	names, err := c.clusterNames(ctx, unit)
	if err != nil {
		return nil, err
	}

	resources := make([]types.Resource, 0, len(names))
	for _, name := range names {
		resource, err := c.describeCluster(ctx, unit, name)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	return resources, nil
}

func (c *ClusterCollector) clusterNames(ctx context.Context, unit types.ScanUnit) ([]string, error) {
	var names []string

	paginator := eks.NewListClustersPaginator(c.client, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "eks", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			names = append(names, page.Clusters...)
			return nil
		})
		if err != nil {
			return nil, collector.Classify(unit, fmt.Errorf("failed to list clusters: %w", err))
		}
	}
	return names, nil
}

func (c *ClusterCollector) describeCluster(ctx context.Context, unit types.ScanUnit, name string) (types.Resource, error) {
	var output *eks.DescribeClusterOutput
	err := c.call(ctx, unit.Account, "eks", func() error {
		var callErr error
		output, callErr = c.client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
		return callErr
	})
	if err != nil {
		return types.Resource{}, collector.Classify(unit, fmt.Errorf("failed to describe cluster %s: %w", name, err))
	}

	nodeGroups, err := c.countNodeGroups(ctx, unit, name)
	if err != nil {
		return types.Resource{}, err
	}
	fargateProfiles, err := c.countFargateProfiles(ctx, unit, name)
	if err != nil {
		return types.Resource{}, err
	}

	cluster := output.Cluster
	return types.Resource{
		ID:        aws.ToString(cluster.Arn),
		Family:    types.FamilyContainerOrch,
		Provider:  "aws",
		Account:   unit.Account,
		Region:    unit.Region,
		Name:      aws.ToString(cluster.Name),
		CreatedAt: aws.ToTime(cluster.CreatedAt),
		Tags:      cluster.Tags,
		Attributes: map[string]types.Value{
			"version":               types.String(aws.ToString(cluster.Version)),
			"status":                types.String(string(cluster.Status)),
			"node_group_count":      types.Number(float64(nodeGroups)),
			"fargate_profile_count": types.Number(float64(fargateProfiles)),
		},
	}, nil
}

func (c *ClusterCollector) countNodeGroups(ctx context.Context, unit types.ScanUnit, cluster string) (int, error) {
	var count int

	paginator := eks.NewListNodegroupsPaginator(c.client, &eks.ListNodegroupsInput{
		ClusterName: aws.String(cluster),
	})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "eks", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			count += len(page.Nodegroups)
			return nil
		})
		if err != nil {
			return 0, collector.Classify(unit, fmt.Errorf("failed to list node groups for %s: %w", cluster, err))
		}
	}
	return count, nil
}

func (c *ClusterCollector) countFargateProfiles(ctx context.Context, unit types.ScanUnit, cluster string) (int, error) {
	var count int

	paginator := eks.NewListFargateProfilesPaginator(c.client, &eks.ListFargateProfilesInput{
		ClusterName: aws.String(cluster),
	})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "eks", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			count += len(page.FargateProfileNames)
			return nil
		})
		if err != nil {
			return 0, collector.Classify(unit, fmt.Errorf("failed to list fargate profiles for %s: %w", cluster, err))
		}
	}
	return count, nil
}
