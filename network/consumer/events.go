package consumer

// TaskEvent is an event sent backwards from a consuming task to the producer
// of a partition. The concrete variant decides how a channel treats the
// event; notably, an InFlightLogRequest may be sent before any subpartition
// was requested and lazily establishes the client connection.
type TaskEvent interface {
	taskEvent()
}

// InFlightLogRequest asks the producer to replay the buffers it logged since
// the given checkpoint.
type InFlightLogRequest struct {
	PartitionID       PartitionID
	SubpartitionIndex int
	CheckpointID      uint64
}

func (InFlightLogRequest) taskEvent() {}

// CheckpointCompleted tells the producer that a checkpoint completed so it
// can truncate its in-flight log.
type CheckpointCompleted struct {
	CheckpointID uint64
}

func (CheckpointCompleted) taskEvent() {}

// UserEvent carries an opaque user-defined payload.
type UserEvent struct {
	Payload []byte
}

func (UserEvent) taskEvent() {}
