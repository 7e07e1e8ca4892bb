package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// CacheControl is applied to objects written under the public prefix
	CacheControl string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of mediaingest.BlobStore and
// mediaingest.CredentialIssuer
type Backend struct {
	client        *s3.Client
	bucket        string
	presignClient *s3.PresignClient
	uploader      *manager.Uploader
	config        Config
	now           func() time.Time
}

// LoadAWSConfig builds an aws.Config from static credentials when both keys
// are set, or the default credential chain otherwise.
func LoadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	awsCfg, err := LoadAWSConfig(ctx, config.Region, config.AccessKeyID, config.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	backend := NewFromClient(s3.NewFromConfig(awsCfg, s3Options...), config)

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// NewFromClient wraps an existing S3 client
func NewFromClient(client *s3.Client, config Config) *Backend {
	return &Backend{
		client:        client,
		bucket:        config.Bucket,
		presignClient: s3.NewPresignClient(client),
		uploader:      manager.NewUploader(client),
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Client returns the underlying S3 client
func (b *Backend) Client() *s3.Client {
	return b.client
}

// Bucket returns the bucket name
func (b *Backend) Bucket() string {
	return b.bucket
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// MinIO reports a missing bucket in several ways
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if apiErrorCode(err) == "BucketAlreadyExists" || apiErrorCode(err) == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// PresignUpload returns a presigned POST policy restricted to the key, a
// content-type prefix and a size range.
func (b *Backend) PresignUpload(ctx context.Context, params mediaingest.PresignUploadParams) (*mediaingest.UploadCredential, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(params.Key),
	}

	conditions := PostConditions(params)
	expiresAt := b.now().Add(params.Expires)

	result, err := b.presignClient.PresignPostObject(ctx, input, func(opts *s3.PresignPostOptions) {
		opts.Expires = params.Expires
		opts.Conditions = conditions
	})
	if err != nil {
		return nil, &mediaingest.StorageError{Backend: "s3", Key: params.Key, Op: "presign-post", Err: err}
	}

	fields := make(map[string]string, len(result.Values))
	for k, v := range result.Values {
		fields[k] = v
	}

	return &mediaingest.UploadCredential{
		URL:       result.URL,
		Fields:    fields,
		Key:       params.Key,
		ExpiresAt: expiresAt,
	}, nil
}

// PostConditions returns the POST policy conditions for params. The SDK adds
// the bucket and key conditions itself.
func PostConditions(params mediaingest.PresignUploadParams) []interface{} {
	conditions := []interface{}{}
	if params.ContentTypePrefix != "" {
		conditions = append(conditions, []interface{}{"starts-with", "$Content-Type", params.ContentTypePrefix})
	}
	if params.MaxSizeBytes > 0 {
		conditions = append(conditions, []interface{}{"content-length-range", params.MinSizeBytes, params.MaxSizeBytes})
	}
	return conditions
}

// Download downloads content directly from S3
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, *mediaingest.ObjectMeta, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			err = fmt.Errorf("%w: %v", mediaingest.ErrObjectNotFound, err)
		}
		return nil, nil, &mediaingest.StorageError{Backend: "s3", Key: objectKey, Op: "download", Err: err}
	}

	meta := &mediaingest.ObjectMeta{
		Key:         objectKey,
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
		ETag:        strings.Trim(aws.ToString(result.ETag), "\""),
	}
	return result.Body, meta, nil
}

// Upload uploads content to S3, replacing any existing object
func (b *Backend) Upload(ctx context.Context, params mediaingest.UploadParams, reader io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(params.ObjectKey),
		Body:   reader,
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}
	cacheControl := params.CacheControl
	if cacheControl == "" && strings.HasPrefix(params.ObjectKey, mediaingest.PublicPrefix) {
		cacheControl = b.config.CacheControl
	}
	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}

	b.applySSE(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return &mediaingest.StorageError{Backend: "s3", Key: params.ObjectKey, Op: "upload", Err: err}
	}
	return nil
}

// Delete deletes content from S3. S3 reports success for missing keys.
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil && !isNotFound(err) {
		return &mediaingest.StorageError{Backend: "s3", Key: objectKey, Op: "delete", Err: err}
	}
	return nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
