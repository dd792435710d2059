package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// checksumMetadataKey holds the hex xxh3 checksum on stored objects.
const checksumMetadataKey = "xxh3"

// S3API is the part of the S3 client the backend uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default AWS configuration. A
// non-empty endpoint targets an S3 compatible service with path style
// addressing.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// S3Backend stores images as objects under a key prefix.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Backend returns a backend writing to bucket.
func NewS3Backend(client S3API, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *S3Backend) objectKey(key string) string {
	return strings.TrimPrefix(path.Join(b.prefix, key), "/")
}

// Checksum reads the checksum recorded on the object. Objects written by
// other tools have none and never match.
func (b *S3Backend) Checksum(ctx context.Context, key string) (uint64, bool, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("head object: %w", err)
	}

	sum, err := strconv.ParseUint(out.Metadata[checksumMetadataKey], 16, 64)
	if err != nil {
		return 0, true, nil
	}
	return sum, true, nil
}

// Put uploads the object with its checksum as metadata.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte, contentType string, sum uint64) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{checksumMetadataKey: strconv.FormatUint(sum, 16)},
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
