package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/drsolutions/drsplan/pkg/models"
)

// ErrArchiveNotFound is returned when an archived result object does not exist
var ErrArchiveNotFound = errors.New("archived result not found")

// ErrArchiveTooLarge is returned when an archived body exceeds maxArchiveSize
var ErrArchiveTooLarge = errors.New("archived result too large")

// maxArchiveSize bounds the object body read from S3
const maxArchiveSize = 16 << 20

// ResultArchive fetches result bodies that were offloaded out of the results table
type ResultArchive interface {
	// Fetch returns the raw JSON body of an archived result
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3ResultArchive reads archived results from S3
type S3ResultArchive struct {
	client s3iface.S3API

	// defaultBucket is used when a stub carries a key but no bucket
	defaultBucket string
}

// NewS3ResultArchive creates an archive reader over an S3 client
func NewS3ResultArchive(client s3iface.S3API, defaultBucket string) *S3ResultArchive {
	return &S3ResultArchive{client: client, defaultBucket: defaultBucket}
}

// Fetch downloads the object body
func (a *S3ResultArchive) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" {
		bucket = a.defaultBucket
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3Bucket and s3Key", ErrMissingKey)
	}

	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == s3.ErrCodeNoSuchBucket) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrArchiveNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	if len(body) > maxArchiveSize {
		return nil, fmt.Errorf("%w: s3://%s/%s exceeds %d bytes", ErrArchiveTooLarge, bucket, key, maxArchiveSize)
	}
	return body, nil
}

// DecodeArchivedResult replaces a stub with the archived body. Key fields of the stub
// win over the body so the result stays addressable.
func DecodeArchivedResult(stub models.Result, body []byte) (models.Result, error) {
	var full models.Result
	if err := json.Unmarshal(body, &full); err != nil {
		return models.Result{}, fmt.Errorf("failed to decode archived result: %w", err)
	}
	full.AppIDPlanID = stub.AppIDPlanID
	full.ExecutionID = stub.ExecutionID
	full.S3Bucket = ""
	full.S3Key = ""
	return full, nil
}
