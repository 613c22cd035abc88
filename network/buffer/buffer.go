package buffer

import (
	"fmt"
	"sync/atomic"
)

// A Recycler takes back the memory segment of a buffer whose reference count
// dropped to zero.
type Recycler interface {
	Recycle(seg *MemorySegment)
}

// Buffer is a reference-counted view onto a memory segment.
//
// A freshly constructed buffer has a reference count of one. Retain and
// Recycle adjust the count; the recycler receives the segment back when the
// count reaches zero. Every logical owner of a buffer must recycle it exactly
// once.
type Buffer struct {
	seg      *MemorySegment
	recycler Recycler
	refs     int32
	size     int32
}

func New(seg *MemorySegment, recycler Recycler) *Buffer {
	if seg == nil {
		panic("buffer: nil memory segment")
	}
	if recycler == nil {
		panic("buffer: nil recycler")
	}
	return &Buffer{
		seg:      seg,
		recycler: recycler,
		refs:     1,
		size:     int32(seg.Size()),
	}
}

// Retain increments the reference count and returns the receiver.
func (b *Buffer) Retain() *Buffer {
	if refs := atomic.AddInt32(&b.refs, 1); refs <= 1 {
		panic(fmt.Sprintf("buffer: retain after free (refs=%d)", refs))
	}
	return b
}

// Recycle decrements the reference count. The segment goes back to the
// recycler when the count reaches zero.
func (b *Buffer) Recycle() {
	refs := atomic.AddInt32(&b.refs, -1)
	if refs < 0 {
		panic(fmt.Sprintf("buffer: double recycle (refs=%d)", refs))
	}
	if refs == 0 {
		b.recycler.Recycle(b.seg)
	}
}

func (b *Buffer) Recycler() Recycler { return b.recycler }

func (b *Buffer) Segment() *MemorySegment { return b.seg }

// SetSize bounds the readable portion of the segment to the first n bytes.
func (b *Buffer) SetSize(n int) {
	if n < 0 || n > b.seg.Size() {
		panic(fmt.Sprintf("buffer: size %d out of range [0, %d]", n, b.seg.Size()))
	}
	atomic.StoreInt32(&b.size, int32(n))
}

func (b *Buffer) Bytes() []byte {
	return b.seg.Bytes()[:atomic.LoadInt32(&b.size)]
}

// SizeUnsafe returns the readable size without checking the reference count.
// Reporting only.
func (b *Buffer) SizeUnsafe() int {
	return int(atomic.LoadInt32(&b.size))
}
