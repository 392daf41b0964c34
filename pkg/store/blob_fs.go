package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSBlobStore writes blobs under a local directory.
type FSBlobStore struct {
	dir     string
	baseURL string
}

// NewFSBlobStore serves files from dir. A baseURL of "" or "file://" yields
// file URLs of the absolute on-disk path.
func NewFSBlobStore(dir, baseURL string) (*FSBlobStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", abs, err)
	}
	return &FSBlobStore{dir: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FSBlobStore) Upload(ctx context.Context, path string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + path)[1:]
	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	if s.baseURL == "" || s.baseURL == "file:" {
		return "file://" + filepath.ToSlash(target), nil
	}
	return s.baseURL + "/" + clean, nil
}

var _ BlobStore = (*FSBlobStore)(nil)
