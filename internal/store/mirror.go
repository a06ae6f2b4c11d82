package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobMirror copies published certificates to any gocloud.dev bucket URL
// (file://, mem://, s3://, gs://).
type BlobMirror struct {
	bucket     *blob.Bucket
	prefix     string
	linkBase   string
	maxRetries int
	backoff    time.Duration
}

// NewBlobMirror opens bucketURL. prefix is prepended to every object key.
// linkBase, when set, is joined with the key to form the download link;
// otherwise the link is "<bucketURL scheme>://<bucket>/<key>".
func NewBlobMirror(ctx context.Context, bucketURL, prefix, linkBase string) (*BlobMirror, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	if linkBase == "" {
		linkBase = defaultLinkBase(bucketURL)
	}
	return &BlobMirror{
		bucket:     bucket,
		prefix:     strings.Trim(prefix, "/"),
		linkBase:   strings.TrimRight(linkBase, "/"),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}, nil
}

func defaultLinkBase(bucketURL string) string {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return bucketURL
	}
	u.RawQuery = ""
	return u.String()
}

func (m *BlobMirror) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload copies localPath to the bucket and returns the download link.
// Transient failures are retried with exponential backoff.
func (m *BlobMirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	key := m.key(name)
	backoff := m.backoff
	var lastErr error
	for i := 0; i < m.maxRetries; i++ {
		err := m.put(ctx, localPath, key)
		if err == nil {
			return m.linkBase + "/" + key, nil
		}
		lastErr = err
		slog.Warn("Mirror upload failed, will retry.", "key", key, "attempt", i+1, "maxRetries", m.maxRetries, "backoff", backoff.String(), "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

func (m *BlobMirror) put(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := m.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/pdf"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func (m *BlobMirror) Close() error {
	return m.bucket.Close()
}
