// internal/media/storage.go
// S3-backed object store for message media. The store is opaque to the
// rest of the core: bytes in, retrievable reference out. Uploads run
// before any message row is created, so an aborted upload leaves no
// metadata and a failed message write leaves at worst an unreferenced
// blob, cleanable out-of-band.

package media

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// ObjectStore stores media bytes and hands back retrievable references.
type ObjectStore interface {
	Upload(ctx context.Context, body io.ReadSeeker, size int64, contentType, filename string) (string, error)
	SignedURL(key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type s3Store struct {
	client    *s3.S3
	bucket    string
	urlExpiry time.Duration
}

// NewS3Store creates an S3-backed object store.
func NewS3Store(awsSession *session.Session, bucket string, urlExpiry time.Duration) ObjectStore {
	return &s3Store{
		client:    s3.New(awsSession),
		bucket:    bucket,
		urlExpiry: urlExpiry,
	}
}

// Upload writes the object under a date-partitioned uuid key. The
// context cancels the transfer cooperatively; callers must not register
// metadata when Upload returns an error.
func (s *s3Store) Upload(ctx context.Context, body io.ReadSeeker, size int64, contentType, filename string) (string, error) {
	ext := filepath.Ext(SanitizeFilename(filename))
	key := fmt.Sprintf("chat/%s/%s%s",
		time.Now().UTC().Format("2006/01/02"),
		uuid.New().String(),
		ext,
	)

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		Metadata: map[string]*string{
			"uploaded-at": aws.String(time.Now().UTC().Format(time.RFC3339)),
			"file-name":   aws.String(SanitizeFilename(filename)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.Storage("failed to upload media", err)
	}

	return key, nil
}

// SignedURL returns a time-bounded GET URL for a stored object.
func (s *s3Store) SignedURL(key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(s.urlExpiry)
	if err != nil {
		return "", apperrors.Storage("failed to sign media URL", err)
	}
	return url, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.Storage("failed to delete media", err)
	}
	return nil
}
