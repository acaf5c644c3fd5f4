// Package imagestore loads receipt images from Cloud Storage or the local disk.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidURI is returned for image references that cannot be parsed.
var ErrInvalidURI = errors.New("invalid image uri")

const gcsScheme = "gs://"

// Image is a fetched receipt image.
type Image struct {
	URI      string
	Name     string
	MIMEType string
	Data     []byte
}

// Source fetches receipt images by reference.
type Source interface {
	Fetch(ctx context.Context, uri string) (Image, error)
}

// Router sends gs:// references to GCS and everything else to Local.
type Router struct {
	GCS   Source
	Local Source
}

// Fetch implements Source.
func (r *Router) Fetch(ctx context.Context, uri string) (Image, error) {
	if IsGCSURI(uri) {
		if r.GCS == nil {
			return Image{}, fmt.Errorf("Fetch %s: cloud storage is not configured", uri)
		}
		return r.GCS.Fetch(ctx, uri)
	}
	if r.Local == nil {
		return Image{}, fmt.Errorf("Fetch %s: local files are not enabled", uri)
	}
	return r.Local.Fetch(ctx, uri)
}

// IsGCSURI reports whether uri uses the gs:// scheme.
func IsGCSURI(uri string) bool {
	return strings.HasPrefix(uri, gcsScheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("%w: %q is not a gs:// uri", ErrInvalidURI, uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("%w: %q has no object path", ErrInvalidURI, uri)
	}

	return parts[0], parts[1], nil
}

// ParseGCSPrefix splits gs://bucket or gs://bucket/some/prefix into bucket
// and object prefix. The prefix may be empty.
func ParseGCSPrefix(uri string) (bucket, prefix string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("%w: %q is not a gs:// uri", ErrInvalidURI, uri)
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return bucket, prefix, nil
}

// Filename returns the last path element of a gs:// uri or local path.
// e.g., "gs://bucket/folder/receipt.jpg" → "receipt.jpg"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, gcsScheme)
	if IsGCSURI(uri) {
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) < 2 {
			return trimmed
		}
		trimmed = parts[1]
	}
	return path.Base(strings.ReplaceAll(trimmed, "\\", "/"))
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".gif":  "image/gif",
}

// MIMEType guesses the image type from the file extension, defaulting to JPEG.
func MIMEType(name string) string {
	if t, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "image/jpeg"
}

// IsImage reports whether name has a known image extension.
func IsImage(name string) bool {
	_, ok := mimeTypes[strings.ToLower(path.Ext(name))]
	return ok
}

func newImage(uri string, data []byte) Image {
	name := Filename(uri)
	return Image{
		URI:      uri,
		Name:     name,
		MIMEType: MIMEType(name),
		Data:     data,
	}
}
