// Package retention manages the bucket lifecycle rule that expires raw uploads
// the ingest worker never removed (corrupt files, abandoned clients). The rule
// runs inside the storage provider and is independent of the worker.
package retention

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Defaults for the raw-upload rule
const (
	DefaultRuleID                   = "expire-raw-uploads"
	DefaultExpireAfterDays    int32 = 3
	DefaultAbortMultipartDays int32 = 1
)

// LifecycleAPI is the subset of the S3 client used here
type LifecycleAPI interface {
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	PutBucketLifecycleConfiguration(ctx context.Context, params *s3.PutBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error)
}

// Policy expires every object under Prefix after ExpireAfterDays.
type Policy struct {
	ID                           string
	Prefix                       string
	ExpireAfterDays              int32
	AbortIncompleteMultipartDays int32
}

// DefaultPolicy returns the rule for the raw upload prefix
func DefaultPolicy() Policy {
	return Policy{
		ID:                           DefaultRuleID,
		Prefix:                       mediaingest.UploadPrefix,
		ExpireAfterDays:              DefaultExpireAfterDays,
		AbortIncompleteMultipartDays: DefaultAbortMultipartDays,
	}
}

// WithDays returns a copy of the policy with a different retention window
func (p Policy) WithDays(days int32) Policy {
	p.ExpireAfterDays = days
	return p
}

// Validate validates the policy
func (p Policy) Validate() error {
	if p.ID == "" {
		return errors.New("rule id is required")
	}
	if p.Prefix == "" {
		return errors.New("prefix is required; refusing to expire the whole bucket")
	}
	if strings.HasPrefix(p.Prefix, mediaingest.PublicPrefix) || strings.HasPrefix(mediaingest.PublicPrefix, p.Prefix) {
		return fmt.Errorf("prefix %q overlaps the public prefix", p.Prefix)
	}
	if p.ExpireAfterDays < 1 {
		return fmt.Errorf("expire after days must be at least 1, got %d", p.ExpireAfterDays)
	}
	if p.AbortIncompleteMultipartDays < 0 {
		return fmt.Errorf("abort incomplete multipart days must not be negative, got %d", p.AbortIncompleteMultipartDays)
	}
	return nil
}

// Rule converts the policy into an S3 lifecycle rule
func (p Policy) Rule() types.LifecycleRule {
	rule := types.LifecycleRule{
		ID:     aws.String(p.ID),
		Status: types.ExpirationStatusEnabled,
		Filter: &types.LifecycleRuleFilter{
			Prefix: aws.String(p.Prefix),
		},
		Expiration: &types.LifecycleExpiration{
			Days: aws.Int32(p.ExpireAfterDays),
		},
	}
	if p.AbortIncompleteMultipartDays > 0 {
		rule.AbortIncompleteMultipartUpload = &types.AbortIncompleteMultipartUpload{
			DaysAfterInitiation: aws.Int32(p.AbortIncompleteMultipartDays),
		}
	}
	return rule
}

// Current returns the bucket's lifecycle rules. A bucket without a lifecycle
// configuration has no rules.
func Current(ctx context.Context, api LifecycleAPI, bucket string) ([]types.LifecycleRule, error) {
	out, err := api.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchLifecycleConfiguration" {
			return nil, nil
		}
		return nil, fmt.Errorf("get lifecycle configuration for %s: %w", bucket, err)
	}
	return out.Rules, nil
}

// Merge replaces rules sharing an ID with one of the policies and keeps the rest
func Merge(existing []types.LifecycleRule, policies ...Policy) []types.LifecycleRule {
	replaced := make(map[string]bool, len(policies))
	for _, p := range policies {
		replaced[p.ID] = true
	}

	rules := make([]types.LifecycleRule, 0, len(existing)+len(policies))
	for _, rule := range existing {
		if replaced[aws.ToString(rule.ID)] {
			continue
		}
		rules = append(rules, rule)
	}
	for _, p := range policies {
		rules = append(rules, p.Rule())
	}
	return rules
}

// Apply installs the policies on bucket, preserving unrelated rules.
func Apply(ctx context.Context, api LifecycleAPI, bucket string, policies ...Policy) error {
	if bucket == "" {
		return errors.New("bucket is required")
	}
	if len(policies) == 0 {
		policies = []Policy{DefaultPolicy()}
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid retention policy %q: %w", p.ID, err)
		}
	}

	existing, err := Current(ctx, api, bucket)
	if err != nil {
		return err
	}

	_, err = api.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: Merge(existing, policies...),
		},
	})
	if err != nil {
		return fmt.Errorf("put lifecycle configuration for %s: %w", bucket, err)
	}
	return nil
}
