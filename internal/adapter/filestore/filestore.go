// Package filestore persists uploaded media on the local filesystem.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"journal/internal/domain"
)

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/uploads/"

var _ domain.MediaStore = (*Store)(nil)

// Store writes files into a single directory.
type Store struct {
	dir string
}

// New creates dir if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes data under name and returns its public URL. Names containing a
// path separator are rejected.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return URLPrefix + name, nil
}
