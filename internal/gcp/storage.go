package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// StorageMirror uploads published certificates to a Cloud Storage bucket.
type StorageMirror struct {
	client     *storage.Client
	bucket     string
	prefix     string
	maxRetries int
	backoff    time.Duration
}

// ParseBucketURL splits "gs://bucket/some/prefix" into bucket and prefix.
func ParseBucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid bucket URL %q: %w", raw, err)
	}
	if u.Scheme != "gs" || u.Host == "" {
		return "", "", fmt.Errorf("invalid bucket URL %q: want gs://bucket[/prefix]", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func NewStorageMirror(ctx context.Context, bucketURL string) (*StorageMirror, error) {
	bucket, prefix, err := ParseBucketURL(bucketURL)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	slog.Info("Cloud Storage mirror initialized.", "bucket", bucket, "prefix", prefix)
	return &StorageMirror{client: client, bucket: bucket, prefix: prefix, maxRetries: 4, backoff: time.Second}, nil
}

func (m *StorageMirror) objectName(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// PublicURL is the storage.googleapis.com link for an object.
func PublicURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}

// Upload copies localPath into the bucket, retrying transient failures with
// exponential backoff. Client errors other than timeouts and throttling are
// not retried.
func (m *StorageMirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	destObject := m.objectName(name)
	backoff := m.backoff
	var lastErr error

	for i := 0; i < m.maxRetries; i++ {
		err := m.uploadOnce(ctx, localPath, destObject)
		if err == nil {
			return PublicURL(m.bucket, destObject), nil
		}
		lastErr = err
		if !retryable(err) {
			slog.Error("Upload rejected; not retrying.", "gcsObject", destObject, "error", err)
			return "", fmt.Errorf("upload for %s rejected: %w", destObject, err)
		}
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", m.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return "", ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return "", fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func (m *StorageMirror) uploadOnce(ctx context.Context, localPath, destObject string) error {
	localFileReader, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer localFileReader.Close()

	writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	gcsWriter := m.client.Bucket(m.bucket).Object(destObject).NewWriter(writeCtx)
	gcsWriter.ContentType = "application/pdf"

	if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 500 || gerr.Code == 408 || gerr.Code == 429
	}
	return !errors.Is(err, os.ErrNotExist)
}

func (m *StorageMirror) Close() error {
	return m.client.Close()
}
