package tempstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/tempstore/tempstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemManager(t *testing.T) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m, err := NewManager("/tmp/docparser", WithFs(fs))
	require.NoError(t, err)
	return m, fs
}

func TestAcquire_WritesContent(t *testing.T) {
	m, fs := newMemManager(t)

	res, err := m.Acquire([]byte("hello"), ".pdf")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/docparser", filepath.Dir(res.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(res.Path()), "docparser-"))
	assert.Equal(t, ".pdf", filepath.Ext(res.Path()))

	data, err := afero.ReadFile(fs, res.Path())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, res.Release())
	exists, err := afero.Exists(fs, res.Path())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAcquire_UniqueNames(t *testing.T) {
	m, _ := newMemManager(t)

	const n = 64
	paths := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Acquire([]byte("page"), ".png")
			if err != nil {
				t.Error(err)
				return
			}
			paths <- res.Path()
		}()
	}
	wg.Wait()
	close(paths)

	seen := make(map[string]bool)
	for p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
	assert.Len(t, seen, n)
	assert.EqualValues(t, n, m.Stats().Acquired)
}

func TestAcquire_SanitizesSuffix(t *testing.T) {
	m, _ := newMemManager(t)

	tests := map[string]string{
		".png":         ".png",
		".jpeg":        ".jpeg",
		"":             "",
		"png":          "",
		"/../../x.png": "",
		".PDF":         "",
	}
	for in, want := range tests {
		res, err := m.Acquire(nil, in)
		require.NoError(t, err)
		assert.Equal(t, want, filepath.Ext(res.Path()), in)
		assert.Equal(t, "/tmp/docparser", filepath.Dir(res.Path()), in)
		require.NoError(t, res.Release())
	}
}

func TestRelease_ExactlyOnce(t *testing.T) {
	m, fs := newMemManager(t)

	res, err := m.Acquire([]byte("x"), ".png")
	require.NoError(t, err)

	require.NoError(t, res.Release())
	require.NoError(t, res.Release())
	require.NoError(t, res.Release())

	stats := m.Stats()
	assert.EqualValues(t, 1, stats.Acquired)
	assert.EqualValues(t, 1, stats.Released)
	assert.EqualValues(t, 0, stats.Outstanding)

	exists, _ := afero.Exists(fs, res.Path())
	assert.False(t, exists)
}

func TestRelease_AlreadyRemovedIsNotAnError(t *testing.T) {
	m, fs := newMemManager(t)

	res, err := m.Acquire([]byte("x"), ".png")
	require.NoError(t, err)
	require.NoError(t, fs.Remove(res.Path()))

	assert.NoError(t, res.Release())
	assert.EqualValues(t, 0, m.Stats().Outstanding)
}

func TestAcquire_StorageError(t *testing.T) {
	fs := &tempstoretest.FailingFs{Fs: afero.NewMemMapFs(), FailAfter: 0}
	m, err := NewManager("/tmp/docparser", WithFs(fs))
	require.NoError(t, err)

	res, err := m.Acquire([]byte("x"), ".pdf")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))
	assert.EqualValues(t, 0, m.Stats().Acquired)
}

func TestAcquire_WriteFailureRemovesPartialFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	fs := &shortWriteFs{Fs: mem}
	m, err := NewManager("/tmp/docparser", WithFs(fs))
	require.NoError(t, err)

	_, err = m.Acquire([]byte("payload"), ".png")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))

	entries, err := afero.ReadDir(mem, "/tmp/docparser")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewManager_DefaultsToOSTempDir(t *testing.T) {
	m, err := NewManager("", WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	assert.Equal(t, os.TempDir(), m.Dir())
}

// shortWriteFs creates files whose writes always fail.
type shortWriteFs struct {
	afero.Fs
}

func (s *shortWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := s.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &failingWriteFile{File: f}, nil
}

type failingWriteFile struct {
	afero.File
}

func (f *failingWriteFile) Write(p []byte) (int, error) {
	return 0, errors.New("no space left on device")
}
