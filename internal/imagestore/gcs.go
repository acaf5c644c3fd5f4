package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// GCSStore reads and writes receipt images in Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCSStore with its own storage client.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// NewGCSStoreWithClient wraps an existing storage client.
func NewGCSStoreWithClient(client *storage.Client) *GCSStore {
	return &GCSStore{client: client}
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Fetch downloads the object at a gs:// uri.
func (s *GCSStore) Fetch(ctx context.Context, uri string) (Image, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return Image{}, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("GCSStore.Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Image{}, fmt.Errorf("GCSStore.Fetch: reading bytes: %w", err)
	}

	img := newImage(uri, data)
	if ct := rc.Attrs.ContentType; ct != "" && ct != "application/octet-stream" {
		img.MIMEType = ct
	}
	return img, nil
}

// List returns the gs:// uris of the images stored under a gs://bucket/prefix
// reference, in object-name order. Objects without an image extension are skipped.
func (s *GCSStore) List(ctx context.Context, prefixURI string) ([]string, error) {
	bucket, prefix, err := ParseGCSPrefix(prefixURI)
	if err != nil {
		return nil, err
	}

	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var uris []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GCSStore.List: listing %s: %w", prefixURI, err)
		}
		if IsImage(attrs.Name) {
			uris = append(uris, gcsScheme+bucket+"/"+attrs.Name)
		}
	}
	return uris, nil
}

// Upload copies a local file into bucket and returns its gs:// uri.
func (s *GCSStore) Upload(ctx context.Context, bucket, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("GCSStore.Upload: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = MIMEType(filePath)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("GCSStore.Upload: copy file to writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("GCSStore.Upload: finalize upload: %w", err)
	}

	return gcsScheme + bucket + "/" + objectName, nil
}

// ObjectName builds a date-partitioned, collision-free object name for an upload.
// e.g., "receipts/2024/03/15/<uuid>-lunch.jpg"
func ObjectName(filePath string, now time.Time) string {
	return fmt.Sprintf("receipts/%s/%s-%s", now.UTC().Format("2006/01/02"), uuid.NewString(), filepath.Base(filePath))
}
