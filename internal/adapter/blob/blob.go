// Package blob moves run inputs and outputs between the local disk and
// object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// ErrNotFound is returned by Download for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is an object store addressed by slash-separated object names.
type Store interface {
	Upload(ctx context.Context, object string, r io.Reader) error
	Download(ctx context.Context, object string) (io.ReadCloser, error)
	Close() error
}

// UploadDir uploads every regular file below dir to prefix/<relative path>.
// Every file is attempted; failures are collected and returned together.
// It returns the object names written.
func UploadDir(ctx context.Context, s Store, dir, prefix string, logger *slog.Logger) ([]string, error) {
	var objects []string
	var result *multierror.Error

	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		object := path.Join(prefix, filepath.ToSlash(rel))
		if err := uploadFile(ctx, s, p, object); err != nil {
			result = multierror.Append(result, err)
			return nil
		}
		logger.Info("uploaded", "object", object)
		objects = append(objects, object)
		return nil
	})
	if walkErr != nil {
		result = multierror.Append(result, fmt.Errorf("walk %s: %w", dir, walkErr))
	}
	return objects, result.ErrorOrNil()
}

func uploadFile(ctx context.Context, s Store, local, object string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close()
	if err := s.Upload(ctx, object, f); err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}
	return nil
}

// DownloadFile copies object to the local file dest, creating its directory.
func DownloadFile(ctx context.Context, s Store, object, dest string) error {
	rc, err := s.Download(ctx, object)
	if err != nil {
		return fmt.Errorf("download %s: %w", object, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", object, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
