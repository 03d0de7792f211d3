package project

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/viant/afs"
)

// Files reads and writes project sources through an afs.Service, so the
// same code works on local paths and on afs URLs.
type Files struct {
	fs afs.Service
}

// NewFiles returns Files backed by the default afs service.
func NewFiles() *Files {
	return &Files{fs: afs.New()}
}

// Read returns the contents of the file at path.
func (f *Files) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := f.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file at path with data. The content goes to a
// sibling temporary file first, which is then renamed over path; the
// original permission bits are kept.
func (f *Files) Write(ctx context.Context, path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp := path + ".tmp"
	if err := f.fs.Upload(ctx, tmp, mode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("project: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("project: replace %s: %w", path, err)
	}
	return nil
}
