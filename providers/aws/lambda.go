package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

// lastModifiedLayout is the timestamp format Lambda uses on functions
const lastModifiedLayout = "2006-01-02T15:04:05.000-0700"

// LambdaAPI is the slice of the Lambda client the collector uses
type LambdaAPI interface {
	lambda.ListFunctionsAPIClient
	lambda.ListProvisionedConcurrencyConfigsAPIClient
}

// FunctionCollector inventories Lambda functions, including their
// provisioned concurrency allocations
type FunctionCollector struct {
	base
	client LambdaAPI
}

// NewFunctionCollector creates a collector for serverless functions
func NewFunctionCollector(client LambdaAPI, pacer Pacer, policy retry.Policy) *FunctionCollector {
	return &FunctionCollector{base: base{pacer: pacer, policy: policy}, client: client}
}

// Family implements collector.Collector
func (c *FunctionCollector) Family() types.Family { return types.FamilyFunction }

// List implements collector.Collector
func (c *FunctionCollector) List(ctx context.Context, unit types.ScanUnit) ([]types.Resource, error) {
	var functions []lambdatypes.FunctionConfiguration

	paginator := lambda.NewListFunctionsPaginator(c.client, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "lambda", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			functions = append(functions, page.Functions...)
			return nil
		})
		if err != nil {
			return nil, collector.Classify(unit, fmt.Errorf("failed to list functions: %w", err))
		}
	}

	resources := make([]types.Resource, 0, len(functions))
	for _, fn := range functions {
		concurrency, err := c.allocatedConcurrency(ctx, unit, aws.ToString(fn.FunctionName))
		if err != nil {
			return nil, err
		}
		resources = append(resources, buildFunctionResource(fn, concurrency, unit))
	}
	return resources, nil
}

// allocatedConcurrency sums provisioned concurrency across a
// function's aliases and versions
func (c *FunctionCollector) allocatedConcurrency(ctx context.Context, unit types.ScanUnit, name string) (int32, error) {
	var total int32

	paginator := lambda.NewListProvisionedConcurrencyConfigsPaginator(c.client,
		&lambda.ListProvisionedConcurrencyConfigsInput{FunctionName: aws.String(name)})
	for paginator.HasMorePages() {
		err := c.call(ctx, unit.Account, "lambda", func() error {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, cfg := range page.ProvisionedConcurrencyConfigs {
				total += aws.ToInt32(cfg.AllocatedProvisionedConcurrentExecutions)
			}
			return nil
		})
		if err != nil {
			return 0, collector.Classify(unit, fmt.Errorf("failed to list provisioned concurrency for %s: %w", name, err))
		}
	}
	return total, nil
}

func buildFunctionResource(fn lambdatypes.FunctionConfiguration, concurrency int32, unit types.ScanUnit) types.Resource {
	name := aws.ToString(fn.FunctionName)

	return types.Resource{
		ID:        aws.ToString(fn.FunctionArn),
		Family:    types.FamilyFunction,
		Provider:  "aws",
		Account:   unit.Account,
		Region:    unit.Region,
		Name:      name,
		CreatedAt: parseLastModified(aws.ToString(fn.LastModified)),
		Attributes: map[string]types.Value{
			"memory_mb":             types.Number(float64(aws.ToInt32(fn.MemorySize))),
			"allocated_concurrency": types.Number(float64(concurrency)),
			"runtime":               types.String(string(fn.Runtime)),
			"handler":               types.String(aws.ToString(fn.Handler)),
			"arn":                   types.String(aws.ToString(fn.FunctionArn)),
		},
	}
}

// parseLastModified tolerates a missing or malformed timestamp; the
// zero time means unknown age and age-gated rules stay quiet
func parseLastModified(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(lastModifiedLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
