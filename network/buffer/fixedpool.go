package buffer

import "sync"

// FixedPool is a gate-level pool with a fixed number of floating buffers.
// It implements BufferProvider for consumers and Recycler for the buffers it
// hands out.
//
// When a request cannot be served, the requester may register itself as a
// BufferListener; recycled segments are then offered to listeners in FIFO
// order before going back to the free list.
type FixedPool struct {
	mtx       sync.Mutex
	free      []*MemorySegment
	listeners []BufferListener
	destroyed bool
}

var _ BufferProvider = (*FixedPool)(nil)
var _ Recycler = (*FixedPool)(nil)

func NewFixedPool(numBuffers, segmentSize int) *FixedPool {
	p := &FixedPool{
		free: make([]*MemorySegment, 0, numBuffers),
	}
	for i := 0; i < numBuffers; i++ {
		p.free = append(p.free, NewMemorySegment(segmentSize))
	}
	return p
}

// NewFixedPoolFromSegments wraps segments drawn from a GlobalPool.
func NewFixedPoolFromSegments(segs []*MemorySegment) *FixedPool {
	return &FixedPool{free: segs}
}

func (p *FixedPool) RequestBuffer() *Buffer {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.destroyed || len(p.free) == 0 {
		return nil
	}
	seg := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	prom.FloatingRequests.Inc()
	return New(seg, p)
}

// AddBufferListener declines the registration if buffers are available or the
// pool is destroyed; the caller should re-request first.
func (p *FixedPool) AddBufferListener(l BufferListener) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.destroyed || len(p.free) > 0 {
		return false
	}
	p.listeners = append(p.listeners, l)
	prom.ListenerRegistrations.Inc()
	return true
}

// Recycle offers the segment to pending listeners, FIFO, and falls back to
// the free list. The listener callback runs without the pool lock held; the
// listener synchronizes on its own state.
func (p *FixedPool) Recycle(seg *MemorySegment) {
	for {
		p.mtx.Lock()
		if p.destroyed {
			p.mtx.Unlock()
			return
		}
		if len(p.listeners) == 0 {
			p.free = append(p.free, seg)
			p.mtx.Unlock()
			return
		}
		l := p.listeners[0]
		p.listeners = p.listeners[1:]
		p.mtx.Unlock()

		result := l.NotifyBufferAvailable(New(seg, p))
		if result.NeedsMoreBuffers() {
			p.mtx.Lock()
			if p.destroyed {
				l.NotifyBufferDestroyed()
			} else {
				p.listeners = append(p.listeners, l)
			}
			p.mtx.Unlock()
		}
		if result.IsBufferUsed() {
			return
		}
		// listener did not take the segment, offer it to the next one
	}
}

func (p *FixedPool) NumAvailableBuffers() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.free)
}

// Destroy drops the free list and notifies pending listeners. Segments handed
// out to consumers are dropped as they come back.
func (p *FixedPool) Destroy() {
	p.mtx.Lock()
	p.destroyed = true
	p.free = nil
	listeners := p.listeners
	p.listeners = nil
	p.mtx.Unlock()
	for _, l := range listeners {
		l.NotifyBufferDestroyed()
	}
}
