package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treesurvey/internal/logger"
	"treesurvey/internal/models"
	"treesurvey/internal/store/sqlite"
)

func newImportFixture(t *testing.T) (*sqlite.Store, *Importer) {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	lg := logger.NewLogger(t.TempDir(), "error")
	return st, NewImporter(st, lg)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestImportDirectory(t *testing.T) {
	st, importer := newImportFixture(t)
	ctx := context.Background()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.PNG"))
	touch(t, filepath.Join(dir, "nested", "c.tiff"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "readme"))

	added, err := importer.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	images, err := st.Images.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, images, 3)
	for _, img := range images {
		assert.NotEmpty(t, img.ImageID)
		assert.True(t, filepath.IsAbs(img.Path))
	}
}

func TestImportDirectory_RerunSkipsRegisteredPaths(t *testing.T) {
	st, importer := newImportFixture(t)
	ctx := context.Background()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "b.jpg"))

	added, err := importer.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	// A new file appears; the old ones are already registered.
	touch(t, filepath.Join(dir, "c.jpg"))

	added, err = importer.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	count, err := st.Images.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestImportDirectory_EmptyDir(t *testing.T) {
	_, importer := newImportFixture(t)

	added, err := importer.ImportDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

var _ ImageRegistrar = (*registrarFunc)(nil)

type registrarFunc func(ctx context.Context, img *models.Image) error

func (f registrarFunc) RegisterImage(ctx context.Context, img *models.Image) error {
	return f(ctx, img)
}

func TestImportDirectory_CanceledContext(t *testing.T) {
	lg := logger.NewLogger(t.TempDir(), "error")
	importer := NewImporter(registrarFunc(func(ctx context.Context, img *models.Image) error {
		t.Fatal("registrar must not be called after cancellation")
		return nil
	}), lg)

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := importer.ImportDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
