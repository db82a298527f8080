package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitGrantsTokens(t *testing.T) {
	registry := NewRegistry(100, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, registry.Wait(ctx, "111122223333", "cloudwatch"))
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	registry := NewRegistry(10, 1)

	registry.Feedback("acct-a", "cloudwatch", true)
	time.Sleep(150 * time.Millisecond)
	registry.Feedback("acct-a", "cloudwatch", true)

	assert.Less(t, registry.Rate("acct-a", "cloudwatch"), 10.0)
	assert.Equal(t, 10.0, registry.Rate("acct-b", "cloudwatch"))
}

func TestThrottleHalvesAndRecovers(t *testing.T) {
	registry := NewRegistry(8, 1)

	registry.Feedback("acct", "ec2", true)
	assert.Equal(t, 4.0, registry.Rate("acct", "ec2"))

	time.Sleep(150 * time.Millisecond)
	registry.Feedback("acct", "ec2", false)
	assert.Equal(t, 5.0, registry.Rate("acct", "ec2"))
}

func TestRateNeverDropsBelowFloor(t *testing.T) {
	registry := NewRegistry(2, 1)

	for i := 0; i < 5; i++ {
		registry.Feedback("acct", "ec2", true)
		time.Sleep(120 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, registry.Rate("acct", "ec2"), 0.5)
}
