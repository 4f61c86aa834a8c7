package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps captures in an S3 bucket.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := capture.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "captures/", 0)
type S3Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	maxSize   int64
	urlExpiry time.Duration
}

// NewS3Store creates an S3 capture store.
//
// Parameters:
//   - client: AWS S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: key prefix for captures (e.g., "captures/")
//   - maxSize: maximum encoded size in bytes (0 = no limit)
func NewS3Store(client *s3.Client, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		maxSize:   maxSize,
		urlExpiry: 24 * time.Hour,
	}
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// Save uploads the capture and returns its id.
func (s *S3Store) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if s.maxSize > 0 && int64(len(snap.PNG)) > s.maxSize {
		return "", ErrTooLarge
	}

	id := newCaptureID()
	key := s.key(id)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snap.PNG),
		ContentType: aws.String("image/png"),
		Metadata: map[string]string{
			"taken-at": snap.TakenAt.UTC().Format(time.RFC3339),
			"width":    strconv.Itoa(snap.Width),
			"height":   strconv.Itoa(snap.Height),
			"windows":  strconv.Itoa(snap.Windows),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	snap.ID = id
	return id, nil
}

// Open retrieves a stored capture and attaches a presigned URL for direct
// access.
func (s *S3Store) Open(ctx context.Context, id string) (*Snapshot, error) {
	if !validCaptureID(id) {
		return nil, ErrNotFound
	}
	key := s.key(id)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}

	get, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	defer get.Body.Close()

	png, err := io.ReadAll(get.Body)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{ID: id, PNG: png}
	// The SDK lowercases user metadata keys on the way back.
	if v, ok := head.Metadata["taken-at"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			snap.TakenAt = t
		}
	}
	if v, ok := head.Metadata["width"]; ok {
		snap.Width, _ = strconv.Atoi(v)
	}
	if v, ok := head.Metadata["height"]; ok {
		snap.Height, _ = strconv.Atoi(v)
	}
	if v, ok := head.Metadata["windows"]; ok {
		snap.Windows, _ = strconv.Atoi(v)
	}

	presign := s3.NewPresignClient(s.client)
	if res, err := presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlExpiry)); err == nil {
		snap.URL = res.URL
	}

	return snap, nil
}

// Cleanup removes captures older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.LastModified != nil && obj.Key != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	for _, key := range toDelete {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return err
		}
	}

	return nil
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + ".png"
}
