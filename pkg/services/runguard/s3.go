package runguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the lock uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Lease struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// S3Lock keeps the lock as an object created with If-None-Match, so it is
// shared by every invocation that can reach the bucket.
type S3Lock struct {
	client S3API
	bucket string
	key    string
	now    func() time.Time
}

func NewS3Lock(client S3API, bucket, key string) *S3Lock {
	if key == "" {
		key = "locks/cost-digest.lock"
	}
	return &S3Lock{client: client, bucket: bucket, key: key, now: time.Now}
}

func (l *S3Lock) Name() string {
	return "s3"
}

// Acquire creates the lock object if it is absent. An expired lease is taken
// over by overwriting it with If-Match on the ETag that was read, so of
// several callers that saw the same stale lease at most one is admitted.
func (l *S3Lock) Acquire(ctx context.Context, holder string, lease time.Duration) (bool, error) {
	ok, err := l.put(ctx, holder, lease, &s3.PutObjectInput{IfNoneMatch: aws.String("*")})
	if err != nil || ok {
		return ok, err
	}

	current, etag, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	if current == nil {
		// Released between the two calls.
		return l.put(ctx, holder, lease, &s3.PutObjectInput{IfNoneMatch: aws.String("*")})
	}
	if l.now().Before(current.ExpiresAt) {
		return false, nil
	}
	if etag == "" {
		return false, fmt.Errorf("lock object s3://%s/%s has no etag", l.bucket, l.key)
	}

	zerolog.Ctx(ctx).Warn().
		Str("bucket", l.bucket).
		Str("key", l.key).
		Str("previous_holder", current.Holder).
		Msg("taking over expired run lock")
	return l.put(ctx, holder, lease, &s3.PutObjectInput{IfMatch: aws.String(etag)})
}

// Release deletes the lock only while it still holds the lease that was read.
func (l *S3Lock) Release(ctx context.Context, holder string) error {
	current, etag, err := l.read(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.Holder != holder {
		return nil
	}

	in := &s3.DeleteObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.key),
	}
	if etag != "" {
		in.IfMatch = aws.String(etag)
	}
	if _, err := l.client.DeleteObject(ctx, in); err != nil {
		if isConditionFailure(err) {
			return nil
		}
		return fmt.Errorf("failed to delete lock object s3://%s/%s: %w", l.bucket, l.key, err)
	}
	return nil
}

// put writes a fresh lease under the condition carried by in. A failed
// condition reports false without an error.
func (l *S3Lock) put(ctx context.Context, holder string, lease time.Duration, in *s3.PutObjectInput) (bool, error) {
	now := l.now().UTC()
	body, err := json.Marshal(s3Lease{Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(lease)})
	if err != nil {
		return false, err
	}

	in.Bucket = aws.String(l.bucket)
	in.Key = aws.String(l.key)
	in.Body = bytes.NewReader(body)
	in.ContentType = aws.String("application/json")

	if _, err := l.client.PutObject(ctx, in); err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write lock object s3://%s/%s: %w", l.bucket, l.key, err)
	}
	return true, nil
}

func (l *S3Lock) read(ctx context.Context) (*s3Lease, string, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read lock object s3://%s/%s: %w", l.bucket, l.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read lock object body: %w", err)
	}
	etag := aws.ToString(out.ETag)

	var lease s3Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		// An unreadable lock can never be released by its holder; treat it as expired.
		return &s3Lease{}, etag, nil
	}
	return &lease, etag, nil
}

func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	// NoSuchKey answers an If-Match write whose object was deleted meanwhile.
	case "PreconditionFailed", "ConditionalRequestConflict", "NoSuchKey":
		return true
	default:
		return false
	}
}
