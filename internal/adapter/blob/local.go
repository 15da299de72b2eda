package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore is a Store rooted at a local directory, for offline runs and
// tests.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store writing below root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(object string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(object))
	root := filepath.Clean(s.root)
	if p != root && !strings.HasPrefix(p, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("object %q escapes the store root", object)
	}
	return p, nil
}

// Upload writes r to the object's file.
func (s *LocalStore) Upload(ctx context.Context, object string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(object)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Download opens the object's file.
func (s *LocalStore) Download(ctx context.Context, object string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(object)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", object, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Close is a no-op.
func (s *LocalStore) Close() error { return nil }
