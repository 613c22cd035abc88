package consumer

import (
	"fmt"

	"github.com/google/uuid"
)

// InputChannelID distinguishes a channel from other channels multiplexed over
// the same connection.
type InputChannelID struct {
	uuid.UUID
}

func NewInputChannelID() InputChannelID {
	return InputChannelID{uuid.New()}
}

// PartitionID identifies a produced result partition together with the
// producing execution attempt. A producer restart yields a new PartitionID.
type PartitionID struct {
	Partition uuid.UUID
	Producer  uuid.UUID
}

func NewPartitionID() PartitionID {
	return PartitionID{
		Partition: uuid.New(),
		Producer:  uuid.New(),
	}
}

func (p PartitionID) String() string {
	return fmt.Sprintf("%s@%s", p.Partition, p.Producer)
}

// ConnectionID names a remote producer endpoint. The connection index allows
// multiple physical connections to the same address.
type ConnectionID struct {
	Address         string
	ConnectionIndex int
}

func (c ConnectionID) String() string {
	return fmt.Sprintf("%s [%d]", c.Address, c.ConnectionIndex)
}
