package consumer

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrReleased is returned by task-facing operations invoked after the channel
// has been released.
var ErrReleased = errors.New("input channel has been released")

// ErrNotRequested is returned by operations that require a prior
// RequestSubpartition call.
var ErrNotRequested = errors.New("subpartition has not been requested")

// BufferReorderingError records a gap in the sequence of received buffers.
type BufferReorderingError struct {
	Expected uint64
	Actual   uint64
}

func (e *BufferReorderingError) Error() string {
	return fmt.Sprintf("buffer re-ordering: expected buffer with sequence number %d, but received %d", e.Expected, e.Actual)
}

// PartitionNotFoundError is stored when the backoff budget for subpartition
// request retries is exhausted.
type PartitionNotFoundError struct {
	PartitionID PartitionID
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition %s not found", e.PartitionID)
}
