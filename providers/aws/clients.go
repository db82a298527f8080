// Package aws implements resource collectors for the AWS provider.
// One collector per family; each takes a narrow client interface so
// tests can run against fakes.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// Pacer throttles outbound API calls per (account, api)
type Pacer interface {
	Wait(ctx context.Context, account, api string) error
	Feedback(account, api string, throttled bool)
}

// Clients bundles the AWS service clients for one account and region
type Clients struct {
	EC2        *ec2.Client
	Lambda     *lambda.Client
	EKS        *eks.Client
	ELB        *elbv2.Client
	OpenSearch *opensearch.Client
	CloudWatch *cloudwatch.Client
	STS        *sts.Client

	Account string
	Region  string
}

// NewClients loads the default credential chain for a region and
// resolves the account ID up front so collectors can label resources
func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	stsClient := sts.NewFromConfig(cfg)
	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account identity: %w", err)
	}

	return &Clients{
		EC2:        ec2.NewFromConfig(cfg),
		Lambda:     lambda.NewFromConfig(cfg),
		EKS:        eks.NewFromConfig(cfg),
		ELB:        elbv2.NewFromConfig(cfg),
		OpenSearch: opensearch.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
		STS:        stsClient,
		Account:    aws.ToString(identity.Account),
		Region:     region,
	}, nil
}

// Collectors builds one collector per requested family
func (c *Clients) Collectors(families []types.Family, pacer Pacer, policy retry.Policy) ([]collector.Collector, error) {
	collectors := make([]collector.Collector, 0, len(families))
	for _, family := range families {
		switch family {
		case types.FamilyFunction:
			collectors = append(collectors, NewFunctionCollector(c.Lambda, pacer, policy))
		case types.FamilyBlockVolume:
			collectors = append(collectors, NewVolumeCollector(c.EC2, pacer, policy))
		case types.FamilyContainerOrch:
			collectors = append(collectors, NewClusterCollector(c.EKS, pacer, policy))
		case types.FamilyLoadBalancer:
			collectors = append(collectors, NewLoadBalancerCollector(c.ELB, pacer, policy))
		case types.FamilySearchDomain:
			collectors = append(collectors, NewSearchDomainCollector(c.OpenSearch, pacer, policy))
		default:
			return nil, fmt.Errorf("no collector for family %q", family)
		}
	}
	return collectors, nil
}

// base carries the pieces every collector shares
type base struct {
	pacer  Pacer
	policy retry.Policy
}

// call runs one API operation under the pacer and backoff policy
func (b base) call(ctx context.Context, account, api string, op func() error) error {
	return retry.Do(ctx, b.policy, func() error {
		if b.pacer != nil {
			if err := b.pacer.Wait(ctx, account, api); err != nil {
				return err
			}
		}
		err := op()
		if b.pacer != nil {
			b.pacer.Feedback(account, api, retry.IsThrottling(err))
		}
		return err
	})
}
