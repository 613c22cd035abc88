package consumer

import "github.com/flowd-io/flowd/network/buffer"

// availableBufferQueue holds the buffers a channel can lend to the network
// layer: exclusive buffers permanently owned by the channel and floating
// buffers borrowed from the gate's pool.
//
// Not internally synchronized; the channel holds its buffer-queue mutex
// around every call.
type availableBufferQueue struct {
	floating  []*buffer.Buffer
	exclusive []*buffer.Buffer
}

// addExclusiveBuffer appends b and, if the queue now holds more than
// numRequired buffers, releases one floating buffer back to its pool.
// Returns how many buffers were effectively added (0 or 1).
func (q *availableBufferQueue) addExclusiveBuffer(b *buffer.Buffer, numRequired int) int {
	q.exclusive = append(q.exclusive, b)
	if q.availableSize() > numRequired {
		fb := q.floating[0]
		q.floating = q.floating[1:]
		fb.Recycle()
		return 0
	}
	return 1
}

func (q *availableBufferQueue) addFloatingBuffer(b *buffer.Buffer) {
	q.floating = append(q.floating, b)
}

// takeBuffer prefers floating buffers so that borrowed resources go back
// into circulation first. Returns nil if both queues are empty.
func (q *availableBufferQueue) takeBuffer() *buffer.Buffer {
	if len(q.floating) > 0 {
		b := q.floating[0]
		q.floating = q.floating[1:]
		return b
	}
	if len(q.exclusive) > 0 {
		b := q.exclusive[0]
		q.exclusive = q.exclusive[1:]
		return b
	}
	return nil
}

// releaseAll recycles every floating buffer to its pool and appends every
// exclusive buffer's segment to sink for the caller to batch-return.
func (q *availableBufferQueue) releaseAll(sink *[]*buffer.MemorySegment) {
	for _, b := range q.floating {
		b.Recycle()
	}
	q.floating = nil
	for _, b := range q.exclusive {
		*sink = append(*sink, b.Segment())
	}
	q.exclusive = nil
}

func (q *availableBufferQueue) availableSize() int {
	return len(q.floating) + len(q.exclusive)
}
