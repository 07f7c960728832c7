package client

import (
	"fmt"
	"io"
	"sync"
)

// Progress reports how much of the upload has been sent. Progress is an
// integer percentage.
type Progress struct {
	FileID       string
	Progress     int
	BytesWritten int64
	BytesTotal   int64
}

type Completed struct {
	FileID     string
	StatusCode int
}

type Failed struct {
	FileID string
	Err    error
}

// Handler receives the events of one upload. A run ends with either
// OnCompleted or OnFailed, never both.
type Handler interface {
	OnProgress(Progress)
	OnCompleted(Completed)
	OnFailed(Failed)
}

// HandlerFuncs adapts plain functions to Handler. Nil members are skipped.
type HandlerFuncs struct {
	Progress  func(Progress)
	Completed func(Completed)
	Failed    func(Failed)
}

func (h HandlerFuncs) OnProgress(e Progress) {
	if h.Progress != nil {
		h.Progress(e)
	}
}

func (h HandlerFuncs) OnCompleted(e Completed) {
	if h.Completed != nil {
		h.Completed(e)
	}
}

func (h HandlerFuncs) OnFailed(e Failed) {
	if h.Failed != nil {
		h.Failed(e)
	}
}

// progressTracker emits an event each time the whole percentage grows. The
// transport reads the body on its own goroutine, so every method locks.
type progressTracker struct {
	mu      sync.Mutex
	handler Handler
	fileID  string
	total   int64
	written int64
	last    int
}

func newProgressTracker(handler Handler, fileID string, offset, total int64) *progressTracker {
	return &progressTracker{handler: handler, fileID: fileID, total: total, written: offset, last: -1}
}

func (p *progressTracker) percent() int {
	if p.total <= 0 {
		return 100
	}
	pct := int(p.written * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func (p *progressTracker) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written += n
	p.emit()
}

func (p *progressTracker) report() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit()
}

func (p *progressTracker) emit() {
	if pct := p.percent(); pct > p.last {
		p.last = pct
		p.handler.OnProgress(Progress{
			FileID:       p.fileID,
			Progress:     pct,
			BytesWritten: p.written,
			BytesTotal:   p.total,
		})
	}
}

// done makes sure the final event reports 100.
func (p *progressTracker) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last < 100 {
		p.last = 100
		p.handler.OnProgress(Progress{
			FileID:       p.fileID,
			Progress:     100,
			BytesWritten: p.total,
			BytesTotal:   p.total,
		})
	}
}

type progressReader struct {
	r       io.Reader
	tracker *progressTracker
}

// Read turns a panicking OnProgress into a read error, it would otherwise
// crash the transport goroutine.
func (r *progressReader) Read(b []byte) (n int, err error) {
	defer func() {
		if re := recover(); re != nil {
			err = fmt.Errorf("progress handler panic: %v", re)
		}
	}()
	n, err = r.r.Read(b)
	if n > 0 {
		r.tracker.add(int64(n))
	}
	return n, err
}
