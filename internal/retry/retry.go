// Package retry holds the one backoff policy shared by every AWS
// call site, so throttling handling is written once instead of per
// resource family.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retry loop
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     uint64
}

// DefaultPolicy matches the provider rate limits we see in practice
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxAttempts:     5,
	}
}

// Do runs op with exponential backoff and jitter. Throttling and
// timeouts are retried; anything classified permanent aborts
// immediately. The context cancels the loop at the next wait.
func Do(ctx context.Context, policy Policy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxAttempts), ctx))
}

var throttleCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"TooManyRequestsException": true,
	"RequestLimitExceeded":     true,
	"RequestThrottled":         true,
}

var permissionCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
}

// IsThrottling reports whether err is a provider rate-limit rejection
func IsThrottling(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsPermissionDenied reports whether err is a permission failure that
// no amount of retrying will fix
func IsPermissionDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return permissionCodes[apiErr.ErrorCode()]
	}
	return false
}

// IsTransient classifies an error as retryable: throttling, timeouts
// and cancellations at the provider edge
func IsTransient(err error) bool {
	if IsThrottling(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return false
}
