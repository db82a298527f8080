package aws

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimworks/skim/collector"
	"github.com/skimworks/skim/internal/retry"
	"github.com/skimworks/skim/types"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxAttempts:     2,
	}
}

func testUnit(family types.Family) types.ScanUnit {
	return types.ScanUnit{Account: "111122223333", Region: "us-east-1", Family: family}
}

type fakeLambda struct {
	functions   []lambdatypes.FunctionConfiguration
	concurrency map[string]int32
	listErr     error
}

func (f *fakeLambda) ListFunctions(_ context.Context, _ *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &lambda.ListFunctionsOutput{Functions: f.functions}, nil
}

func (f *fakeLambda) ListProvisionedConcurrencyConfigs(_ context.Context, params *lambda.ListProvisionedConcurrencyConfigsInput, _ ...func(*lambda.Options)) (*lambda.ListProvisionedConcurrencyConfigsOutput, error) {
	out := &lambda.ListProvisionedConcurrencyConfigsOutput{}
	if allocated, ok := f.concurrency[aws.ToString(params.FunctionName)]; ok {
		out.ProvisionedConcurrencyConfigs = []lambdatypes.ProvisionedConcurrencyConfigListItem{
			{AllocatedProvisionedConcurrentExecutions: aws.Int32(allocated)},
		}
	}
	return out, nil
}

func TestFunctionCollectorList(t *testing.T) {
	client := &fakeLambda{
		functions: []lambdatypes.FunctionConfiguration{
			{
				FunctionName: aws.String("ingest"),
				FunctionArn:  aws.String("arn:aws:lambda:us-east-1:111122223333:function:ingest"),
				MemorySize:   aws.Int32(1024),
				Runtime:      lambdatypes.RuntimeGo1x,
				LastModified: aws.String("2026-01-15T10:00:00.000+0000"),
			},
			{
				FunctionName: aws.String("cleanup"),
				FunctionArn:  aws.String("arn:aws:lambda:us-east-1:111122223333:function:cleanup"),
				MemorySize:   aws.Int32(128),
			},
		},
		concurrency: map[string]int32{"ingest": 10},
	}
	c := NewFunctionCollector(client, nil, fastPolicy())

	resources, err := c.List(context.Background(), testUnit(types.FamilyFunction))
	require.NoError(t, err)
	require.Len(t, resources, 2)

	ingest := resources[0]
	assert.Equal(t, types.FamilyFunction, ingest.Family)
	assert.Equal(t, "ingest", ingest.Name)
	assert.Equal(t, "111122223333", ingest.Account)

	memory, _ := ingest.Attr("memory_mb")
	assert.Equal(t, 1024.0, mustNumber(t, memory))
	allocated, _ := ingest.Attr("allocated_concurrency")
	assert.Equal(t, 10.0, mustNumber(t, allocated))
	assert.Equal(t, 2026, ingest.CreatedAt.Year())

	cleanup := resources[1]
	allocated, _ = cleanup.Attr("allocated_concurrency")
	assert.Equal(t, 0.0, mustNumber(t, allocated))
	assert.True(t, cleanup.CreatedAt.IsZero())
}

func TestFunctionCollectorClassifiesPermissionError(t *testing.T) {
	client := &fakeLambda{
		listErr: &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"},
	}
	c := NewFunctionCollector(client, nil, fastPolicy())

	_, err := c.List(context.Background(), testUnit(types.FamilyFunction))
	require.Error(t, err)
	assert.False(t, collector.IsTransient(err))
}

func TestParseLastModified(t *testing.T) {
	parsed := parseLastModified("2026-01-15T10:30:00.000+0000")
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), parsed.UTC())

	assert.True(t, parseLastModified("").IsZero())
	assert.True(t, parseLastModified("not-a-time").IsZero())
}

func mustNumber(t *testing.T, v types.Value) float64 {
	t.Helper()
	n, ok := v.AsNumber()
	require.True(t, ok)
	return n
}
