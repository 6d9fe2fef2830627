// Package tempstore allocates transient files with guaranteed, exactly-once release.
package tempstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spherical/docparser/internal/domain"
)

const filePrefix = "docparser"

var suffixPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Manager hands out uniquely named scoped files under one base directory.
type Manager struct {
	fs  afero.Fs
	dir string

	acquired atomic.Int64
	released atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs replaces the OS filesystem, mostly for tests.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// NewManager creates a manager rooted at dir, creating it if needed.
// An empty dir means the OS temp directory.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		fs:  afero.NewOsFs(),
		dir: dir,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dir == "" {
		m.dir = os.TempDir()
	}
	if err := m.fs.MkdirAll(m.dir, 0o700); err != nil {
		return nil, domain.StorageError(fmt.Sprintf("failed to create temp directory %s", m.dir), err)
	}
	return m, nil
}

// Dir returns the base directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Acquire writes data to a new uniquely named file and returns its handle.
// The content is synced before Acquire returns. Callers must Release the
// resource on every exit path, typically with defer.
func (m *Manager) Acquire(data []byte, suffix string) (*Resource, error) {
	if !suffixPattern.MatchString(suffix) {
		suffix = ""
	}
	path := filepath.Join(m.dir, fmt.Sprintf("%s-%s%s", filePrefix, uuid.NewString(), suffix))

	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, domain.StorageError("failed to create temp file", err)
	}
	if err := writeAll(f, data); err != nil {
		_ = m.fs.Remove(path)
		return nil, domain.StorageError(fmt.Sprintf("failed to write temp file %s", path), err)
	}

	m.acquired.Add(1)
	return &Resource{
		path: path,
		fs:   m.fs,
		done: func() { m.released.Add(1) },
	}, nil
}

// Stats reports how many resources were acquired and released so far.
func (m *Manager) Stats() Stats {
	acquired := m.acquired.Load()
	released := m.released.Load()
	return Stats{
		Acquired:    acquired,
		Released:    released,
		Outstanding: acquired - released,
	}
}

// Stats is a snapshot of a manager's counters.
type Stats struct {
	Acquired    int64
	Released    int64
	Outstanding int64
}

// Resource is one scoped file. Release is safe to call more than once.
type Resource struct {
	path string
	fs   afero.Fs
	done func()

	once sync.Once
	err  error
}

// Path returns the location of the backing file.
func (r *Resource) Path() string {
	return r.path
}

// Release deletes the backing file. Only the first call does any work; later
// calls return the first call's result.
func (r *Resource) Release() error {
	r.once.Do(func() {
		err := r.fs.Remove(r.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			r.err = domain.StorageError(fmt.Sprintf("failed to remove temp file %s", r.path), err)
		}
		r.done()
	})
	return r.err
}

func writeAll(f afero.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
