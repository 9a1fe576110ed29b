// Package report assembles visibility reports: it gathers score and
// sample data in parallel, derives insights and recommendations, and
// renders structured plus narrative artifacts into blob storage.
package report

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// BlobStore persists rendered report artifacts. Put returns a URL the
// artifact can later be fetched from.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// FileStore is the local-filesystem BlobStore. Artifacts land under
// the root directory and are addressed with file:// URLs.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Put writes data to root/path, creating parent directories as needed.
func (f *FileStore) Put(_ context.Context, path string, data []byte) (string, error) {
	dest := filepath.Join(f.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "report: create artifact dir")
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write artifact %s", path)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", eris.Wrap(err, "report: resolve artifact path")
	}
	return "file://" + abs, nil
}
