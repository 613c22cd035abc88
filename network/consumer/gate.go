package consumer

import "github.com/flowd-io/flowd/network/buffer"

// InputChannel is the part of a channel's surface the owning gate needs for
// callbacks and exclusive-segment assignment.
type InputChannel interface {
	InputChannelID() InputChannelID
	PartitionID() PartitionID
	Index() int
}

// InputGate is the task-level owner of a set of input channels. It supplies
// the shared buffer pool, receives non-empty notifications, and reclaims
// exclusive segments when a channel is released.
//
// Implementations must tolerate NotifyChannelNonEmpty being called from the
// network I/O goroutine.
type InputGate interface {
	// BufferPool returns the gate's pool of floating buffers.
	BufferPool() buffer.BufferProvider

	// BufferProvider returns the provider channels register buffer
	// listeners with. Usually the same object as BufferPool.
	BufferProvider() buffer.BufferProvider

	// ReturnExclusiveSegments takes back exclusive segments in one batch.
	ReturnExclusiveSegments(segs []*buffer.MemorySegment) error

	NotifyChannelNonEmpty(ch InputChannel)

	TriggerPartitionStateCheck(pid PartitionID)

	TriggerFailProducer(pid PartitionID, cause error)

	// AssignExclusiveSegments draws exclusive segments from the global pool
	// and assigns them to ch.
	AssignExclusiveSegments(ch InputChannel) error

	IsCreditBased() bool
}
