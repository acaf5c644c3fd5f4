package imagestore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// LocalStore reads images from the local filesystem.
type LocalStore struct {
	// MaxBytes rejects larger files when positive.
	MaxBytes int64
}

// NewLocalStore creates a LocalStore with no size limit.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Fetch reads a local path, with or without a file:// prefix.
func (s *LocalStore) Fetch(ctx context.Context, uri string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	p := strings.TrimPrefix(uri, "file://")
	if strings.TrimSpace(p) == "" {
		return Image{}, fmt.Errorf("%w: empty path", ErrInvalidURI)
	}

	info, err := os.Stat(p)
	if err != nil {
		return Image{}, fmt.Errorf("LocalStore.Fetch: stat %q: %w", p, err)
	}
	if info.IsDir() {
		return Image{}, fmt.Errorf("%w: %q is a directory", ErrInvalidURI, p)
	}
	if s.MaxBytes > 0 && info.Size() > s.MaxBytes {
		return Image{}, fmt.Errorf("LocalStore.Fetch: %q is %d bytes, limit is %d", p, info.Size(), s.MaxBytes)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return Image{}, fmt.Errorf("LocalStore.Fetch: read %q: %w", p, err)
	}

	return newImage(p, data), nil
}
