package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	errMissingBucket  = errors.New("media.s3.missing_bucket")
	errMissingRegion  = errors.New("media.s3.missing_region")
	errMissingBaseURL = errors.New("media.s3.missing_public_base_url")
)

// S3Config configures the S3-compatible object store backing uploads.
// Endpoint is optional and covers MinIO-style deployments.
type S3Config struct {
	Region        string
	Bucket        string
	Endpoint      string
	AccessKeyID   string
	SecretKey     string
	PublicBaseURL string
}

type s3ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores media assets in an S3-compatible bucket.
type S3Uploader struct {
	client        s3ObjectPutter
	bucket        string
	publicBaseURL string
}

// NewS3Uploader builds the AWS client and returns a ready uploader.
func NewS3Uploader(ctx context.Context, configuration S3Config) (*S3Uploader, error) {
	if strings.TrimSpace(configuration.Bucket) == "" {
		return nil, fmt.Errorf("media.s3.new: %w", errMissingBucket)
	}
	if strings.TrimSpace(configuration.Region) == "" {
		return nil, fmt.Errorf("media.s3.new: %w", errMissingRegion)
	}
	if strings.TrimSpace(configuration.PublicBaseURL) == "" {
		return nil, fmt.Errorf("media.s3.new: %w", errMissingBaseURL)
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(configuration.Region),
	}
	if configuration.AccessKeyID != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(configuration.AccessKeyID, configuration.SecretKey, ""),
		))
	}
	awsConfiguration, loadErr := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if loadErr != nil {
		return nil, fmt.Errorf("media.s3.new: %w", loadErr)
	}

	client := s3.NewFromConfig(awsConfiguration, func(options *s3.Options) {
		if configuration.Endpoint != "" {
			options.BaseEndpoint = aws.String(configuration.Endpoint)
			options.UsePathStyle = true
		}
	})

	return &S3Uploader{
		client:        client,
		bucket:        configuration.Bucket,
		publicBaseURL: strings.TrimSuffix(configuration.PublicBaseURL, "/"),
	}, nil
}

// Upload puts the object and returns its public URL.
func (uploader *S3Uploader) Upload(ctx context.Context, objectKey string, contentType string, body io.Reader) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("media.s3.upload: %w", ErrEmptyObjectName)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(uploader.bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, putErr := uploader.client.PutObject(ctx, input); putErr != nil {
		return "", fmt.Errorf("media.s3.upload: %w", putErr)
	}
	return uploader.publicBaseURL + "/" + objectKey, nil
}
