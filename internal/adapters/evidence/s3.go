package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

// PutObjectAPI is the part of the S3 client the store uses
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes evidence objects into a bucket
type S3Store struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Store creates an S3 evidence store. With an endpoint the store
// talks to an S3-compatible server using static credentials; otherwise the
// default AWS credential chain is used.
func NewS3Store(ctx context.Context, cfg config.EvidenceConfig, logger *zap.Logger) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("evidence.s3.bucket is required")
	}

	var client *s3.Client
	if cfg.S3Endpoint != "" {
		client = s3.NewFromConfig(aws.Config{Region: cfg.S3Region}, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
			o.UsePathStyle = true
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}

	return NewS3StoreWithClient(client, cfg.S3Bucket, cfg.S3Prefix, logger), nil
}

// NewS3StoreWithClient creates a store on an existing client
func NewS3StoreWithClient(client PutObjectAPI, bucket, prefix string, logger *zap.Logger) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

// Save uploads the raw image bytes and returns the s3:// location. Uploads
// are conditional so an existing key is never replaced; a taken key gets a
// numeric suffix before the extension.
func (s *S3Store) Save(ctx context.Context, record *core.EvidenceRecord) (string, error) {
	name := FileName(record)
	for n := 0; n < maxNameAttempts; n++ {
		key := s.prefix + suffixed(name, n)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(record.Data),
			ContentType: aws.String("image/jpeg"),
			IfNoneMatch: aws.String("*"),
			Metadata: map[string]string{
				"group-id": record.GroupID,
				"user-id":  record.UserID,
			},
		})
		if keyExists(err) {
			s.logger.Debug("Evidence key taken", zap.String("key", key))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to upload evidence object: %w", err)
		}
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	return "", fmt.Errorf("failed to upload evidence object: %d keys taken for %s", maxNameAttempts, name)
}

func keyExists(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}

var _ core.EvidenceStore = (*S3Store)(nil)
