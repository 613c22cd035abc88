package buffer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPoolRequestAndRecycle(t *testing.T) {
	p := NewFixedPool(2, 64)
	assert.Equal(t, 2, p.NumAvailableBuffers())

	b1 := p.RequestBuffer()
	b2 := p.RequestBuffer()
	require.NotNil(t, b1)
	require.NotNil(t, b2)
	assert.Nil(t, p.RequestBuffer())

	b1.Recycle()
	assert.Equal(t, 1, p.NumAvailableBuffers())
	b2.Recycle()
	assert.Equal(t, 2, p.NumAvailableBuffers())
}

type recordingListener struct {
	mtx      sync.Mutex
	offers   []*Buffer
	result   NotificationResult
	destroys int
}

func (l *recordingListener) NotifyBufferAvailable(b *Buffer) NotificationResult {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.offers = append(l.offers, b)
	return l.result
}

func (l *recordingListener) NotifyBufferDestroyed() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.destroys++
}

func TestFixedPoolListenerRegistration(t *testing.T) {
	p := NewFixedPool(1, 64)

	// declined while buffers are available
	assert.False(t, p.AddBufferListener(&recordingListener{}))

	b := p.RequestBuffer()
	require.NotNil(t, b)
	l := &recordingListener{result: BufferUsedNoNeedMore}
	assert.True(t, p.AddBufferListener(l))

	// the recycled segment goes to the listener, not the free list
	b.Recycle()
	require.Len(t, l.offers, 1)
	assert.Equal(t, 0, p.NumAvailableBuffers())
}

func TestFixedPoolListenerNotUsedFallsBack(t *testing.T) {
	p := NewFixedPool(1, 64)
	b := p.RequestBuffer()
	require.NotNil(t, b)

	l := &recordingListener{result: BufferNotUsed}
	require.True(t, p.AddBufferListener(l))

	b.Recycle()
	require.Len(t, l.offers, 1)
	// declined offer: the segment lands on the free list
	assert.Equal(t, 1, p.NumAvailableBuffers())
}

func TestFixedPoolListenerFIFO(t *testing.T) {
	p := NewFixedPool(2, 64)
	b1, b2 := p.RequestBuffer(), p.RequestBuffer()
	require.NotNil(t, b1)
	require.NotNil(t, b2)

	first := &recordingListener{result: BufferUsedNoNeedMore}
	second := &recordingListener{result: BufferUsedNoNeedMore}
	require.True(t, p.AddBufferListener(first))
	require.True(t, p.AddBufferListener(second))

	b1.Recycle()
	b2.Recycle()
	assert.Len(t, first.offers, 1)
	assert.Len(t, second.offers, 1)
}

func TestFixedPoolDestroyNotifiesListeners(t *testing.T) {
	p := NewFixedPool(1, 64)
	b := p.RequestBuffer()
	require.NotNil(t, b)
	l := &recordingListener{}
	require.True(t, p.AddBufferListener(l))

	p.Destroy()
	assert.Equal(t, 1, l.destroys)
	assert.False(t, p.AddBufferListener(&recordingListener{}))
	assert.Nil(t, p.RequestBuffer())

	// segments coming back after destroy are dropped
	b.Recycle()
	assert.Equal(t, 0, p.NumAvailableBuffers())
}

func TestGlobalPoolSegmentAccounting(t *testing.T) {
	p := NewGlobalPool(4, 64)
	assert.Equal(t, 64, p.SegmentSize())
	assert.Equal(t, 4, p.NumAvailableSegments())

	segs, err := p.RequestSegments(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, 1, p.NumAvailableSegments())

	one := p.TryRequestSegment()
	require.NotNil(t, one)
	assert.Nil(t, p.TryRequestSegment())

	p.ReturnSegments(append(segs, one))
	assert.Equal(t, 4, p.NumAvailableSegments())
}

func TestGlobalPoolRequestSegmentsBlocksUntilReturned(t *testing.T) {
	p := NewGlobalPool(2, 64)
	segs, err := p.RequestSegments(context.Background(), 2)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		more, err := p.RequestSegments(context.Background(), 2)
		assert.NoError(t, err)
		assert.Len(t, more, 2)
	}()

	p.ReturnSegments(segs)
	<-done
}

func TestGlobalPoolRequestSegmentsContextCancel(t *testing.T) {
	p := NewGlobalPool(1, 64)
	_, err := p.RequestSegments(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.RequestSegments(ctx, 1)
	require.Error(t, err)
}
