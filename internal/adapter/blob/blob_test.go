package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalStore_UploadDownload(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "rainfall/som/a.txt", strings.NewReader("hello")))
	rc, err := s.Download(ctx, "rainfall/som/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	_, err = s.Download(ctx, "rainfall/som/missing.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.Upload(ctx, "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestUploadDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "raw"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "daily.csv"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "raw", "raw.geojson"), []byte("b"), 0o644))

	root := t.TempDir()
	s := NewLocalStore(root)
	objects, err := UploadDir(context.Background(), s, src, "rainfall/som/2024042612", testLogger())
	require.NoError(t, err)

	sort.Strings(objects)
	assert.Equal(t, []string{
		"rainfall/som/2024042612/daily.csv",
		"rainfall/som/2024042612/raw/raw.geojson",
	}, objects)

	data, err := os.ReadFile(filepath.Join(root, "rainfall", "som", "2024042612", "raw", "raw.geojson"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

type failingStore struct {
	*LocalStore
	failOn string
}

func (f failingStore) Upload(ctx context.Context, object string, r io.Reader) error {
	if strings.HasSuffix(object, f.failOn) {
		return errors.New("quota exceeded")
	}
	return f.LocalStore.Upload(ctx, object, r)
}

func TestUploadDir_CollectsFailures(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0o644))
	}
	s := failingStore{LocalStore: NewLocalStore(t.TempDir()), failOn: "b.csv"}

	objects, err := UploadDir(context.Background(), s, src, "out", testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, objects, 2)
}

func TestDownloadFile(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Upload(ctx, "in/som_inputs.zip", strings.NewReader("zipdata")))

	dest := filepath.Join(t.TempDir(), "input", "som_inputs.zip")
	require.NoError(t, DownloadFile(ctx, s, "in/som_inputs.zip", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))

	err = DownloadFile(ctx, s, "in/missing.zip", dest)
	assert.True(t, errors.Is(err, ErrNotFound))
}
