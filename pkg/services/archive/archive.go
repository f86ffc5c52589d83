package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultPrefix = "reports"

// Archiver stores the CSV export of a run and returns where it was put.
type Archiver interface {
	Archive(ctx context.Context, runID string, startedAt time.Time, name string, data []byte) (string, error)
}

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

func NewS3Archiver(cfg aws.Config, bucket, prefix string) *S3Archiver {
	return NewS3ArchiverWithAPI(s3.NewFromConfig(cfg), bucket, prefix)
}

func NewS3ArchiverWithAPI(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key lays exports out by date so a bucket lifecycle rule can expire them.
func (a *S3Archiver) Key(runID string, startedAt time.Time, name string) string {
	return path.Join(a.prefix, startedAt.UTC().Format("2006/01/02"), runID, name)
}

func (a *S3Archiver) Archive(ctx context.Context, runID string, startedAt time.Time, name string, data []byte) (string, error) {
	key := a.Key(runID, startedAt, name)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv; charset=utf-8"),
		Metadata:    map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive export to s3://%s/%s: %w", a.bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// Nop is used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, string, time.Time, string, []byte) (string, error) {
	return "", nil
}
