package consumer

import (
	"time"

	"github.com/flowd-io/flowd/logger"
)

// ResultPartitionManager is the in-process registry of produced partitions a
// local channel reads from.
type ResultPartitionManager interface {
	IsPartitionRegistered(pid PartitionID) bool
}

// TaskEventDispatcher routes task events to in-process producers.
type TaskEventDispatcher interface {
	Publish(pid PartitionID, event TaskEvent) bool
}

// LocalInputChannel consumes a subpartition produced in the same process,
// bypassing the network stack. Only the conversion boundary from a remote
// channel is implemented here; consumption goes through the partition
// manager directly.
type LocalInputChannel struct {
	channelBase

	id                  InputChannelID
	partitionManager    ResultPartitionManager
	taskEventDispatcher TaskEventDispatcher
}

var _ InputChannel = (*LocalInputChannel)(nil)

func NewLocalInputChannel(
	gate InputGate,
	index int,
	pid PartitionID,
	partitionManager ResultPartitionManager,
	taskEventDispatcher TaskEventDispatcher,
	initialBackoff, maxBackoff time.Duration,
	log logger.Logger,
) *LocalInputChannel {
	c := &LocalInputChannel{
		id:                  NewInputChannelID(),
		partitionManager:    partitionManager,
		taskEventDispatcher: taskEventDispatcher,
	}
	c.channelBase.init(gate, index, pid, initialBackoff, maxBackoff, log)
	return c
}

func (c *LocalInputChannel) InputChannelID() InputChannelID { return c.id }
