// Package tempstoretest provides filesystem fakes for exercising storage failures.
package tempstoretest

import (
	"errors"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// ErrInjected is returned by FailingFs once its budget is spent.
var ErrInjected = errors.New("injected storage failure")

// FailingFs lets the first FailAfter file creations succeed and fails the rest.
// Directory creation and removal are passed through.
type FailingFs struct {
	afero.Fs
	FailAfter int

	mu     sync.Mutex
	opened int
}

// OpenFile counts creations and fails once the budget is exhausted.
func (f *FailingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		f.mu.Lock()
		n := f.opened
		f.opened++
		f.mu.Unlock()
		if n >= f.FailAfter {
			return nil, &os.PathError{Op: "open", Path: name, Err: ErrInjected}
		}
	}
	return f.Fs.OpenFile(name, flag, perm)
}
