package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/healthtrack-api/internal/config"
	"github.com/healthtrack-api/internal/domain"
)

// ArchiveStore writes aged audit events to S3 before the retention sweep
// deletes them from the hot table. Objects are immutable JSON batches keyed
// by sweep timestamp, so the archive stays append-only like the log itself.
type ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(cfg *config.Config) *s3.Client {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		panic("failed to load AWS config for S3: " + err.Error())
	}

	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// NewArchiveStore creates an ArchiveStore with the given client and bucket.
func NewArchiveStore(client *s3.Client, bucket string) *ArchiveStore {
	return &ArchiveStore{client: client, bucket: bucket}
}

// ArchiveBatch uploads one batch of audit events as a JSON object and returns
// the object key. The key embeds the sweep time: audit/2026/01/02/150405.json.
func (s *ArchiveStore) ArchiveBatch(ctx context.Context, events []domain.AuditEvent, at time.Time) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	body, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal audit batch: %w", err)
	}
	key := at.UTC().Format("audit/2006/01/02/150405.json")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return key, nil
}
