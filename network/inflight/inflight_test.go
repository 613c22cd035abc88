package inflight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowd-io/flowd/network/buffer"
)

type segmentSink struct {
	recycled int
}

func (s *segmentSink) Recycle(seg *buffer.MemorySegment) {
	s.recycled++
}

func newLoggedBuffer(sink *segmentSink) *buffer.Buffer {
	return buffer.New(buffer.NewMemorySegment(64), sink)
}

func TestLogAndCheckpointTruncation(t *testing.T) {
	sink := &segmentSink{}
	l := NewSubpartitionLog()

	// epoch 0: two buffers + barrier opening epoch 5
	b0, b1, barrier := newLoggedBuffer(sink), newLoggedBuffer(sink), newLoggedBuffer(sink)
	l.Log(b0)
	l.Log(b1)
	l.LogCheckpointBarrier(barrier, 5)

	// epoch 5: one buffer
	b2 := newLoggedBuffer(sink)
	l.Log(b2)
	assert.Equal(t, 4, l.NumLogged())

	// completing checkpoint 5 drops epoch 0 and recycles its three buffers
	require.NoError(t, l.NotifyCheckpointComplete(5))
	assert.Equal(t, 1, l.NumLogged())
	// the producer still holds its own reference; the log's reference is gone
	assert.Equal(t, 0, sink.recycled)
	b0.Recycle()
	b1.Recycle()
	barrier.Recycle()
	assert.Equal(t, 3, sink.recycled)

	assert.Error(t, l.NotifyCheckpointComplete(99))
}

func TestReplayFromCheckpoint(t *testing.T) {
	sink := &segmentSink{}
	l := NewSubpartitionLog()

	l.Log(newLoggedBuffer(sink))
	l.LogCheckpointBarrier(newLoggedBuffer(sink), 3)
	l.Log(newLoggedBuffer(sink))
	l.Log(newLoggedBuffer(sink))

	it, err := l.FromCheckpoint(3)
	require.NoError(t, err)
	assert.Equal(t, 2, it.NumberRemaining())

	n := 0
	for it.HasNext() {
		b := it.Next()
		b.Recycle() // the network stack recycles as it sends
		n++
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, it.NumberRemaining())
	// replay references released, log references still held
	assert.Equal(t, 0, sink.recycled)

	_, err = l.FromCheckpoint(17)
	require.Error(t, err)
}

func TestReplayIteratorClose(t *testing.T) {
	sink := &segmentSink{}
	l := NewSubpartitionLog()
	l.Log(newLoggedBuffer(sink))
	l.Log(newLoggedBuffer(sink))

	it, err := l.FromCheckpoint(0)
	require.NoError(t, err)
	it.Next().Recycle()
	it.Close()
	assert.Equal(t, 0, it.NumberRemaining())
}

func TestTruncate(t *testing.T) {
	sink := &segmentSink{}
	l := NewSubpartitionLog()

	bufs := make([]*buffer.Buffer, 4)
	for i := range bufs {
		bufs[i] = newLoggedBuffer(sink)
		l.Log(bufs[i])
	}
	l.LogCheckpointBarrier(newLoggedBuffer(sink), 2)
	l.Log(newLoggedBuffer(sink))
	assert.Equal(t, 6, l.NumLogged())

	// a consumer reported three delivered buffers
	l.Truncate(3)
	assert.Equal(t, 3, l.NumLogged())

	// truncation beyond the log drains it
	l.Truncate(10)
	assert.Equal(t, 0, l.NumLogged())
}

func TestClear(t *testing.T) {
	sink := &segmentSink{}
	l := NewSubpartitionLog()

	b := newLoggedBuffer(sink)
	l.Log(b)
	l.LogCheckpointBarrier(newLoggedBuffer(sink), 4)
	l.Clear()
	assert.Equal(t, 0, l.NumLogged())

	// logging continues in a fresh epoch 0
	l.Log(newLoggedBuffer(sink))
	assert.Equal(t, 1, l.NumLogged())
}
