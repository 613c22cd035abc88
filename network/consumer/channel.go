package consumer

import (
	"sync"
	"time"

	"github.com/flowd-io/flowd/logger"
)

// channelBase carries the state every input channel variant shares: the
// owning gate, identity within the gate, retry backoff, and the stored-error
// slot that ferries I/O-side failures to the task goroutine.
type channelBase struct {
	gate        InputGate
	index       int
	partitionID PartitionID

	log logger.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	currentBackoff time.Duration

	errMtx sync.Mutex
	err    error
}

func (c *channelBase) init(gate InputGate, index int, pid PartitionID, initialBackoff, maxBackoff time.Duration, log logger.Logger) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	c.gate = gate
	c.index = index
	c.partitionID = pid
	c.log = log
	c.initialBackoff = initialBackoff
	c.maxBackoff = maxBackoff
}

func (c *channelBase) Index() int { return c.index }

func (c *channelBase) PartitionID() PartitionID { return c.partitionID }

// setError stores the first error; later errors are dropped. The stored
// error is raised on the task goroutine by the next task-facing operation.
func (c *channelBase) setError(err error) {
	c.errMtx.Lock()
	defer c.errMtx.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *channelBase) checkError() error {
	c.errMtx.Lock()
	defer c.errMtx.Unlock()
	return c.err
}

// increaseBackoff advances the exponential backoff. Returns false once the
// budget is exhausted (or if no backoff was configured at all).
func (c *channelBase) increaseBackoff() bool {
	if c.initialBackoff == 0 {
		return false
	}
	if c.currentBackoff == 0 {
		c.currentBackoff = c.initialBackoff
		return true
	}
	if c.currentBackoff < c.maxBackoff {
		c.currentBackoff = 2 * c.currentBackoff
		if c.currentBackoff > c.maxBackoff {
			c.currentBackoff = c.maxBackoff
		}
		return true
	}
	return false
}
