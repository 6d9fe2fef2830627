package pipeline

// Observer receives per-page progress. Calls may arrive concurrently when
// pages are transcribed in parallel; implementations must not block.
type Observer interface {
	PageStarted(jobID string, index, total int)
	PageFinished(jobID string, index, total int, err error)
}

type nopObserver struct{}

func (nopObserver) PageStarted(string, int, int)         {}
func (nopObserver) PageFinished(string, int, int, error) {}
