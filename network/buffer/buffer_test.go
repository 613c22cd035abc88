package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type segmentSink struct {
	segs []*MemorySegment
}

func (s *segmentSink) Recycle(seg *MemorySegment) {
	s.segs = append(s.segs, seg)
}

func TestBufferRefCounting(t *testing.T) {
	sink := &segmentSink{}
	seg := NewMemorySegment(128)
	b := New(seg, sink)

	b.Retain()
	b.Recycle()
	assert.Empty(t, sink.segs)

	b.Recycle()
	require.Len(t, sink.segs, 1)
	assert.Same(t, seg, sink.segs[0])
}

func TestBufferDoubleRecyclePanics(t *testing.T) {
	b := New(NewMemorySegment(128), &segmentSink{})
	b.Recycle()
	assert.Panics(t, func() { b.Recycle() })
}

func TestBufferRetainAfterFreePanics(t *testing.T) {
	b := New(NewMemorySegment(128), &segmentSink{})
	b.Recycle()
	assert.Panics(t, func() { b.Retain() })
}

func TestBufferSize(t *testing.T) {
	b := New(NewMemorySegment(128), &segmentSink{})
	assert.Equal(t, 128, b.SizeUnsafe())
	b.SetSize(17)
	assert.Equal(t, 17, b.SizeUnsafe())
	assert.Len(t, b.Bytes(), 17)
	assert.Panics(t, func() { b.SetSize(129) })
}
