package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"github.com/spherical/docparser/internal/domain"
)

// fakeSource serves pre-built pages and can fail rendering of chosen indices.
type fakeSource struct {
	pages      []domain.PageImage
	renderErrs map[int]error
	rendered   atomic.Int32
	closed     atomic.Bool
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{renderErrs: map[int]error{}}
	for i := 1; i <= n; i++ {
		s.pages = append(s.pages, domain.PageImage{
			Index:    i,
			Data:     []byte(fmt.Sprintf("page-%d", i)),
			MIMEType: "image/png",
		})
	}
	return s
}

func (s *fakeSource) Count() int { return len(s.pages) }

func (s *fakeSource) Page(_ context.Context, index int) (domain.PageImage, error) {
	s.rendered.Add(1)
	if err := s.renderErrs[index]; err != nil {
		return domain.PageImage{}, err
	}
	return s.pages[index-1], nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeSplitter struct {
	src    *fakeSource
	err    error
	calls  atomic.Int32
	gotDoc domain.DecodedDocument
	docFs  afero.Fs
	// whether the document's backing file existed during Split
	docExisted bool
}

func (f *fakeSplitter) Split(_ context.Context, doc domain.DecodedDocument) (domain.PageSource, error) {
	f.calls.Add(1)
	f.gotDoc = doc
	if f.docFs != nil {
		f.docExisted, _ = afero.Exists(f.docFs, doc.Path)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.src, nil
}

// scriptedTranscriber returns canned output per page index.
type scriptedTranscriber struct {
	mu      sync.Mutex
	outputs map[int]string
	errs    map[int]error
	calls   []int
	paths   []string

	// hook runs before the canned answer is returned
	hook func(ctx context.Context, page domain.PageImage) error

	fs           afero.Fs
	missingPaths int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, page domain.PageImage) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, page.Index)
	s.paths = append(s.paths, page.Path)
	if s.fs != nil {
		if ok, _ := afero.Exists(s.fs, page.Path); !ok {
			s.missingPaths++
		}
	}
	s.mu.Unlock()

	if s.hook != nil {
		if err := s.hook(ctx, page); err != nil {
			return "", err
		}
	}
	if err := s.errs[page.Index]; err != nil {
		return "", err
	}
	return s.outputs[page.Index], nil
}

func (s *scriptedTranscriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type event struct {
	started bool
	index   int
	total   int
	failed  bool
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
}

func (o *recordingObserver) PageStarted(_ string, index, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event{started: true, index: index, total: total})
}

func (o *recordingObserver) PageFinished(_ string, index, total int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event{index: index, total: total, failed: err != nil})
}
