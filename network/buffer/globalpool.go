package buffer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// GlobalPool is the process-wide arena of memory segments. Channels get their
// exclusive segments from here, and gate-level pools draw their floating
// segments from here.
//
// The semaphore tracks free segments so that exclusive assignment can block
// until enough segments drain back, while floating requests stay
// non-blocking.
type GlobalPool struct {
	segmentSize int

	sema *semaphore.Weighted

	mtx       sync.Mutex
	free      []*MemorySegment
	destroyed bool
}

func NewGlobalPool(numSegments, segmentSize int) *GlobalPool {
	if numSegments <= 0 {
		panic("buffer: global pool needs at least one segment")
	}
	p := &GlobalPool{
		segmentSize: segmentSize,
		sema:        semaphore.NewWeighted(int64(numSegments)),
		free:        make([]*MemorySegment, 0, numSegments),
	}
	for i := 0; i < numSegments; i++ {
		p.free = append(p.free, NewMemorySegment(segmentSize))
	}
	prom.GlobalSegmentsFree.Set(float64(numSegments))
	return p
}

func (p *GlobalPool) SegmentSize() int { return p.segmentSize }

// RequestSegments takes n segments out of the pool, blocking until they are
// available or ctx is done. Used for exclusive per-channel assignment.
func (p *GlobalPool) RequestSegments(ctx context.Context, n int) ([]*MemorySegment, error) {
	if n <= 0 {
		return nil, errors.New("buffer: number of requested segments must be positive")
	}
	if err := p.sema.Acquire(ctx, int64(n)); err != nil {
		return nil, errors.Wrap(err, "buffer: acquire segments")
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.destroyed {
		p.sema.Release(int64(n))
		return nil, errors.New("buffer: global pool is destroyed")
	}
	segs := make([]*MemorySegment, n)
	copy(segs, p.free[len(p.free)-n:])
	p.free = p.free[:len(p.free)-n]
	prom.GlobalSegmentsFree.Sub(float64(n))
	return segs, nil
}

// TryRequestSegment returns a single segment or nil without blocking.
func (p *GlobalPool) TryRequestSegment() *MemorySegment {
	if !p.sema.TryAcquire(1) {
		return nil
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.destroyed {
		p.sema.Release(1)
		return nil
	}
	seg := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	prom.GlobalSegmentsFree.Dec()
	return seg
}

// ReturnSegments gives segments back in one batch.
func (p *GlobalPool) ReturnSegments(segs []*MemorySegment) {
	if len(segs) == 0 {
		return
	}
	p.mtx.Lock()
	if !p.destroyed {
		p.free = append(p.free, segs...)
	}
	p.mtx.Unlock()
	p.sema.Release(int64(len(segs)))
	prom.GlobalSegmentsFree.Add(float64(len(segs)))
}

func (p *GlobalPool) NumAvailableSegments() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.free)
}

func (p *GlobalPool) Destroy() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.destroyed = true
	p.free = nil
}
