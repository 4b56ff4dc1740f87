package attachments

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by BlobStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore uploads report payloads to S3 and hands back stable references.
// If bucket is empty the store is disabled and the pipeline falls back to
// per-file failures for oversized uploads.
type BlobStore struct {
	bucket   string
	baseURL  string
	s3Client S3API
}

// NewBlobStore creates a blob store. baseURL overrides the public URL
// prefix; empty uses the standard S3 form.
func NewBlobStore(s3Client S3API, bucket, baseURL string) *BlobStore {
	if baseURL == "" && bucket != "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &BlobStore{bucket: bucket, baseURL: strings.TrimRight(baseURL, "/"), s3Client: s3Client}
}

// Enabled returns true if blob storage is configured.
func (b *BlobStore) Enabled() bool {
	return b != nil && b.bucket != "" && b.s3Client != nil
}

// Put streams one payload to the object store and returns its public URL
// and object key.
func (b *BlobStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (url string, err error) {
	if !b.Enabled() {
		return "", fmt.Errorf("attachments: blob store not configured")
	}

	_, err = b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("attachments: s3 put %s: %w", key, err)
	}

	return b.baseURL + "/" + key, nil
}
