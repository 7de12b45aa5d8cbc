// Package blob provides read access to uploaded document bytes. Upload and
// durability live with the storage layer outside this service.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a document or page image does not exist.
var ErrNotFound = errors.New("blob: not found")

// Opener resolves document IDs to bytes. Open returns the document's
// normalized text (pages separated by form feed, the pdftotext convention).
// OpenPageImage returns a rendered page image when one was produced at
// upload time; ErrNotFound means no render exists for that page.
type Opener interface {
	Open(ctx context.Context, documentID string) ([]byte, error)
	OpenPageImage(ctx context.Context, documentID string, page int) ([]byte, error)
}

// FS is a filesystem-backed Opener: <dir>/<id>.txt for text,
// <dir>/<id>/page-<n>.png for page renders.
type FS struct {
	dir string
}

// NewFS creates a filesystem Opener rooted at dir.
func NewFS(dir string) *FS {
	return &FS{dir: dir}
}

func (f *FS) Open(_ context.Context, documentID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, documentID+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read document %s", documentID)
	}
	return data, nil
}

// Put stages a document's normalized text under the blob root. Used by the
// CLI for local ingestion; production uploads land here out of band.
func (f *FS) Put(_ context.Context, documentID string, text []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return eris.Wrapf(err, "blob: create dir %s", f.dir)
	}
	path := filepath.Join(f.dir, documentID+".txt")
	if err := os.WriteFile(path, text, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write document %s", documentID)
	}
	return nil
}

func (f *FS) OpenPageImage(_ context.Context, documentID string, page int) ([]byte, error) {
	path := filepath.Join(f.dir, documentID, fmt.Sprintf("page-%d.png", page))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read page image %s p%d", documentID, page)
	}
	return data, nil
}
