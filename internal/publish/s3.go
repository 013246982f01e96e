package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gridiron-data/nflrefresh/internal/logger"
)

// parquetContentType is sent with every uploaded object.
const parquetContentType = "application/vnd.apache.parquet"

// s3API is the subset of the S3 client used by S3Publisher.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Publisher.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint (MinIO, localstack)
	Endpoint string
}

// S3Publisher mirrors written files to s3://{bucket}/{prefix}/{file name}.
type S3Publisher struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Publisher creates a publisher using the default AWS credential chain.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 publisher requires a bucket")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Publisher(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Publisher(client s3API, bucket, prefix string) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Name implements Publisher.
func (p *S3Publisher) Name() string { return "s3" }

// Key returns the object key for a local file path.
func (p *S3Publisher) Key(localPath string) string {
	name := filepath.Base(localPath)
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Publish uploads the artifact file.
func (p *S3Publisher) Publish(ctx context.Context, a Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return &Error{Publisher: p.Name(), Path: a.Path, Err: err}
	}
	defer f.Close()

	key := p.Key(a.Path)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(parquetContentType),
		Metadata: map[string]string{
			"run-id":  a.RunID,
			"mode":    a.Mode,
			"season":  fmt.Sprint(a.Season),
			"records": fmt.Sprint(a.RecordCount),
		},
	})
	if err != nil {
		return &Error{Publisher: p.Name(), Path: a.Path, Err: err}
	}

	logger.Info("file uploaded",
		"season", a.Season,
		"bucket", p.bucket,
		"key", key,
	)
	return nil
}

// Close implements Publisher.
func (p *S3Publisher) Close() error { return nil }

var _ Publisher = (*S3Publisher)(nil)
