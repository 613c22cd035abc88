package consumer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/flowd-io/flowd/logger"
	"github.com/flowd-io/flowd/network/buffer"
)

// RemoteInputChannel consumes one subpartition of a remote result partition.
//
// Three concurrent roles touch a channel: the network I/O goroutine delivers
// buffers (OnBuffer, OnEmptyBuffer, OnSenderBacklog, OnError), the task
// goroutine drains them (GetNextBuffer, SendTaskEvent, Recycle,
// ReleaseAllResources), and the gate's buffer pool calls back
// NotifyBufferAvailable from whatever goroutine recycles a floating buffer.
//
// Two mutexes guard the shared state: recvMtx for the received-buffers queue
// and the replay counters, bufMtx for the available-buffer queue and the
// credit bookkeeping. They are never held at the same time.
type RemoteInputChannel struct {
	channelBase

	id                InputChannelID
	connectionID      ConnectionID
	connectionManager ConnectionManager

	clientMtx sync.Mutex
	client    PartitionRequestClient

	released              atomic.Bool
	subpartitionRequested atomic.Bool

	// expectedSequenceNumber is mutated by the network I/O goroutine only.
	expectedSequenceNumber uint64

	recvMtx         sync.Mutex
	receivedBuffers []*buffer.Buffer

	// Replay bookkeeping, guarded by recvMtx. While deduplicating is set,
	// drained buffers are discarded until numBuffersDeduplicate reaches
	// zero. numBuffersRemoved counts buffers actually delivered to the task
	// and is reported upstream as an in-flight log truncation hint.
	deduplicating         bool
	numBuffersDeduplicate int
	numBuffersRemoved     int

	// initialCredit is set exactly once by AssignExclusiveSegments and
	// immutable afterwards.
	initialCredit int

	bufMtx                      sync.Mutex
	bufferQueue                 availableBufferQueue
	numRequiredBuffers          int
	isWaitingForFloatingBuffers bool

	unannouncedCredit atomic.Int32
}

var _ buffer.Recycler = (*RemoteInputChannel)(nil)
var _ buffer.BufferListener = (*RemoteInputChannel)(nil)
var _ InputChannel = (*RemoteInputChannel)(nil)

// BufferAndAvailability is the task-facing result of GetNextBuffer.
type BufferAndAvailability struct {
	Buffer        *buffer.Buffer
	MoreAvailable bool
	SenderBacklog int
}

func NewRemoteInputChannel(
	gate InputGate,
	index int,
	pid PartitionID,
	cid ConnectionID,
	connectionManager ConnectionManager,
	initialBackoff, maxBackoff time.Duration,
	log logger.Logger,
) *RemoteInputChannel {
	c := &RemoteInputChannel{
		id:                NewInputChannelID(),
		connectionID:      cid,
		connectionManager: connectionManager,
	}
	c.channelBase.init(gate, index, pid, initialBackoff, maxBackoff, log)
	c.channelBase.log = c.channelBase.log.
		ReplaceField("channel_id", c.id.String()).
		ReplaceField("partition", pid.String())
	return c
}

func (c *RemoteInputChannel) String() string {
	return fmt.Sprintf("RemoteInputChannel %d [%s at %s, unannouncedCredit: %d]",
		c.index, c.partitionID, c.connectionID, c.UnannouncedCredit())
}

// AssignExclusiveSegments assigns the channel's exclusive buffers. Must be
// called exactly once, before any traffic.
func (c *RemoteInputChannel) AssignExclusiveSegments(segs []*buffer.MemorySegment) error {
	if c.initialCredit > 0 {
		return errors.New("exclusive buffers have already been assigned to this channel")
	}
	if len(segs) == 0 {
		return errors.New("at least one exclusive buffer per channel is required")
	}

	c.initialCredit = len(segs)

	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	c.numRequiredBuffers = len(segs)
	for _, seg := range segs {
		c.bufferQueue.addExclusiveBuffer(buffer.New(seg, c), c.numRequiredBuffers)
	}
	return nil
}

// ------------------------------------------------------------------------
// Consume
// ------------------------------------------------------------------------

// RequestSubpartition requests the subpartition from the remote producer.
// Idempotent; only the first call dispatches a request.
func (c *RemoteInputChannel) RequestSubpartition(subpartitionIndex int) error {
	if !c.subpartitionRequested.CompareAndSwap(false, true) {
		return nil
	}

	c.log.WithField("initial_credit", c.initialCredit).
		WithField("subpartition", subpartitionIndex).
		Info("requesting remote subpartition")

	client, err := c.getOrCreateClient()
	if err != nil {
		return errors.Wrap(err, "create partition request client")
	}
	return client.RequestSubpartition(c.partitionID, subpartitionIndex, c, 0)
}

// RetriggerSubpartitionRequest re-issues the subpartition request with
// increased backoff. Once the backoff budget is exhausted the channel stores
// a PartitionNotFoundError instead.
func (c *RemoteInputChannel) RetriggerSubpartitionRequest(subpartitionIndex int) error {
	if !c.subpartitionRequested.Load() {
		return errors.WithStack(ErrNotRequested)
	}

	if c.increaseBackoff() {
		client := c.getClient()
		if client == nil {
			return errors.New("missing partition request client for retrigger")
		}
		return client.RequestSubpartition(c.partitionID, subpartitionIndex, c, c.currentBackoff)
	}

	c.failPartitionRequest()
	return nil
}

func (c *RemoteInputChannel) failPartitionRequest() {
	c.setError(&PartitionNotFoundError{PartitionID: c.partitionID})
}

// GetNextBuffer returns the next received buffer. Callable by the task
// goroutine only. A nil result with nil error means there is nothing to
// surface right now: the queue was empty, or the head buffer was consumed as
// a deduplication match of a replayed buffer.
func (c *RemoteInputChannel) GetNextBuffer() (*BufferAndAvailability, error) {
	if c.released.Load() {
		return nil, errors.Wrap(ErrReleased, "queried for a buffer")
	}
	if !c.subpartitionRequested.Load() {
		return nil, errors.Wrap(ErrNotRequested, "queried for a buffer")
	}
	if err := c.checkError(); err != nil {
		return nil, err
	}

	var (
		next          *buffer.Buffer
		dedup         *buffer.Buffer
		moreAvailable bool
	)
	c.recvMtx.Lock()
	if len(c.receivedBuffers) == 0 {
		c.recvMtx.Unlock()
		return nil, nil
	}
	next = c.receivedBuffers[0]
	c.receivedBuffers[0] = nil
	c.receivedBuffers = c.receivedBuffers[1:]
	moreAvailable = len(c.receivedBuffers) > 0

	if c.deduplicating {
		// replayed buffer already consumed before the upstream failure
		c.numBuffersDeduplicate--
		if c.numBuffersDeduplicate == 0 {
			c.deduplicating = false
		}
		dedup = next
		next = nil
	} else {
		c.numBuffersRemoved++
		c.numBuffersDeduplicate++
	}
	c.recvMtx.Unlock()

	if dedup != nil {
		debug("%s: dropping deduplicated buffer", c.id)
		dedup.Recycle()
		return nil, nil
	}

	prom.BytesIn.Add(float64(next.SizeUnsafe()))
	prom.BuffersIn.Inc()
	return &BufferAndAvailability{
		Buffer:        next,
		MoreAvailable: moreAvailable,
		SenderBacklog: c.SenderBacklog(),
	}, nil
}

// ------------------------------------------------------------------------
// Task events
// ------------------------------------------------------------------------

// SendTaskEvent sends an event to the producer. Requires a prior
// RequestSubpartition, except for InFlightLogRequest which may precede any
// subscription and lazily establishes the client.
func (c *RemoteInputChannel) SendTaskEvent(event TaskEvent) error {
	if c.released.Load() {
		return errors.Wrap(ErrReleased, "tried to send task event")
	}
	_, isInFlightLogRequest := event.(InFlightLogRequest)
	if !c.subpartitionRequested.Load() && !isInFlightLogRequest {
		return errors.Wrap(ErrNotRequested, "tried to send task event")
	}
	if err := c.checkError(); err != nil {
		return err
	}

	client := c.getClient()
	if client == nil {
		if !isInFlightLogRequest {
			return errors.New("no partition request client in place, cannot send task event")
		}
		var err error
		client, err = c.getOrCreateClient()
		if err != nil {
			return errors.Wrap(err, "create partition request client for in-flight log request")
		}
	}

	return client.SendTaskEvent(c.partitionID, event, c)
}

func (c *RemoteInputChannel) getClient() PartitionRequestClient {
	c.clientMtx.Lock()
	defer c.clientMtx.Unlock()
	return c.client
}

func (c *RemoteInputChannel) getOrCreateClient() (PartitionRequestClient, error) {
	c.clientMtx.Lock()
	defer c.clientMtx.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := c.connectionManager.CreatePartitionRequestClient(c.connectionID)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// ------------------------------------------------------------------------
// Credit-based flow control
// ------------------------------------------------------------------------

// notifyCreditAvailable schedules an announcement of the unannounced credit.
// Called exactly on 0->positive transitions of unannouncedCredit.
func (c *RemoteInputChannel) notifyCreditAvailable() error {
	if !c.subpartitionRequested.Load() {
		return errors.WithStack(ErrNotRequested)
	}
	client := c.getClient()
	if client == nil {
		return errors.New("missing partition request client for credit announcement")
	}
	prom.CreditAnnouncements.Inc()
	return client.NotifyCreditAvailable(c)
}

// addCreditAndAnnounce adds n to the unannounced credit and triggers an
// announcement iff the counter transitioned from zero. The atomic
// get-and-add makes the transition observable by exactly one caller.
func (c *RemoteInputChannel) addCreditAndAnnounce(n int) {
	if n <= 0 {
		return
	}
	before := c.unannouncedCredit.Add(int32(n)) - int32(n)
	if before != 0 {
		return
	}
	if err := c.notifyCreditAvailable(); err != nil {
		c.setError(err)
	}
}

// Recycle implements buffer.Recycler for the channel's exclusive buffers.
// The buffer goes back into the available-buffer queue; after release, the
// segment goes straight back to the gate's exclusive pool instead.
func (c *RemoteInputChannel) Recycle(seg *buffer.MemorySegment) {
	numAdded := 0

	c.bufMtx.Lock()
	// Never add a buffer after ReleaseAllResources drained the queue.
	// Either release already flipped the flag, or it is waiting for bufMtx
	// and will drain whatever we add; checking under bufMtx rules out the
	// former.
	if c.released.Load() {
		err := c.gate.ReturnExclusiveSegments([]*buffer.MemorySegment{seg})
		c.bufMtx.Unlock()
		if err != nil {
			c.log.WithError(err).Error("cannot return exclusive segment to gate")
		}
		return
	}
	numAdded = c.bufferQueue.addExclusiveBuffer(buffer.New(seg, c), c.numRequiredBuffers)
	c.bufMtx.Unlock()

	c.addCreditAndAnnounce(numAdded)
}

// OnSenderBacklog reacts to a fresh producer backlog report: it recomputes
// the required buffer count and tops the available-buffer queue up with
// floating buffers, registering as a pool listener if the pool runs dry.
// Called by the network I/O goroutine.
func (c *RemoteInputChannel) OnSenderBacklog(backlog int) {
	numRequested := 0

	c.bufMtx.Lock()
	if c.released.Load() {
		c.bufMtx.Unlock()
		return
	}

	c.numRequiredBuffers = backlog + c.initialCredit
	for c.bufferQueue.availableSize() < c.numRequiredBuffers && !c.isWaitingForFloatingBuffers {
		if b := c.gate.BufferPool().RequestBuffer(); b != nil {
			c.bufferQueue.addFloatingBuffer(b)
			numRequested++
		} else if c.gate.BufferProvider().AddBufferListener(c) {
			c.isWaitingForFloatingBuffers = true
			break
		}
		// a declined registration means the pool freed up in between, retry
	}
	c.bufMtx.Unlock()

	c.addCreditAndAnnounce(numRequested)
}

// NotifyBufferAvailable implements buffer.BufferListener. The pool offers a
// floating buffer that freed up while this channel was waiting. Runs on the
// recycling goroutine, a third concurrent actor next to the I/O and task
// goroutines.
func (c *RemoteInputChannel) NotifyBufferAvailable(b *buffer.Buffer) buffer.NotificationResult {
	result := buffer.BufferNotUsed

	c.bufMtx.Lock()
	if !c.isWaitingForFloatingBuffers {
		c.bufMtx.Unlock()
		c.setError(errors.New("buffer pool notification while not waiting for floating buffers"))
		return result
	}

	// Never add a buffer after ReleaseAllResources drained the queue: if
	// release already ran, the flag is visible here; if it has not drained
	// yet, it is blocked on bufMtx and will drain what we add.
	if c.released.Load() || c.bufferQueue.availableSize() >= c.numRequiredBuffers {
		c.isWaitingForFloatingBuffers = false
		c.bufMtx.Unlock()
		return result
	}

	c.bufferQueue.addFloatingBuffer(b)
	if c.bufferQueue.availableSize() == c.numRequiredBuffers {
		c.isWaitingForFloatingBuffers = false
		result = buffer.BufferUsedNoNeedMore
	} else {
		result = buffer.BufferUsedNeedMore
	}
	c.bufMtx.Unlock()

	c.addCreditAndAnnounce(1)
	return result
}

// NotifyBufferDestroyed implements buffer.BufferListener.
func (c *RemoteInputChannel) NotifyBufferDestroyed() {
	c.bufMtx.Lock()
	c.isWaitingForFloatingBuffers = false
	c.bufMtx.Unlock()
}

// RequestBuffer hands a buffer to the network layer for receiving one data
// frame. Floating buffers first. Returns nil if the channel has nothing to
// lend.
func (c *RemoteInputChannel) RequestBuffer() *buffer.Buffer {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	return c.bufferQueue.takeBuffer()
}

// ------------------------------------------------------------------------
// Network I/O notifications (called by the I/O goroutine)
// ------------------------------------------------------------------------

// OnBuffer delivers a received buffer with its sequence number and the
// producer's current backlog (negative backlog means "not reported").
// Ownership of b transfers to the channel unless it is dropped, in which
// case it is recycled here.
func (c *RemoteInputChannel) OnBuffer(b *buffer.Buffer, sequenceNumber uint64, backlog int) {
	recycleBuffer := true
	defer func() {
		if recycleBuffer {
			b.Recycle()
		}
	}()

	debug("%s: onBuffer seq=%d expected=%d backlog=%d", c.id, sequenceNumber, c.expectedSequenceNumber, backlog)

	var wasEmpty bool
	c.recvMtx.Lock()
	if c.released.Load() {
		c.recvMtx.Unlock()
		return
	}
	if sequenceNumber != c.expectedSequenceNumber {
		expected := c.expectedSequenceNumber
		c.recvMtx.Unlock()
		c.OnError(&BufferReorderingError{Expected: expected, Actual: sequenceNumber})
		return
	}
	wasEmpty = len(c.receivedBuffers) == 0
	c.receivedBuffers = append(c.receivedBuffers, b)
	recycleBuffer = false
	c.recvMtx.Unlock()

	c.expectedSequenceNumber++

	if wasEmpty {
		c.gate.NotifyChannelNonEmpty(c)
	}
	if backlog >= 0 {
		c.OnSenderBacklog(backlog)
	}
}

// OnEmptyBuffer advances the sequence number for a frame without payload.
func (c *RemoteInputChannel) OnEmptyBuffer(sequenceNumber uint64, backlog int) {
	success := false

	c.recvMtx.Lock()
	if !c.released.Load() {
		if sequenceNumber == c.expectedSequenceNumber {
			c.expectedSequenceNumber++
			success = true
		} else {
			expected := c.expectedSequenceNumber
			c.recvMtx.Unlock()
			c.OnError(&BufferReorderingError{Expected: expected, Actual: sequenceNumber})
			return
		}
	}
	c.recvMtx.Unlock()

	if success && backlog >= 0 {
		c.OnSenderBacklog(backlog)
	}
}

// OnFailedPartitionRequest asks the gate to re-check the partition state.
func (c *RemoteInputChannel) OnFailedPartitionRequest() {
	c.gate.TriggerPartitionStateCheck(c.partitionID)
}

// OnError records a transport error; it is raised on the task goroutine by
// the next task-facing operation.
func (c *RemoteInputChannel) OnError(cause error) {
	c.setError(cause)
}

// TriggerFailProducer asks the gate to fail the producer of this partition.
func (c *RemoteInputChannel) TriggerFailProducer(cause error) {
	c.gate.TriggerFailProducer(c.partitionID, cause)
}

// ------------------------------------------------------------------------
// Life cycle
// ------------------------------------------------------------------------

func (c *RemoteInputChannel) IsReleased() bool {
	return c.released.Load()
}

// ReleaseAllResources releases all exclusive and floating buffers and closes
// the partition request client. Idempotent. The released flag is set before
// the client is closed so that buffers arriving concurrently with the close
// are dropped and recycled cleanly.
func (c *RemoteInputChannel) ReleaseAllResources() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}

	// Gather exclusive segments and return them to the gate in one batch,
	// so the gate does not redistribute after each single segment.
	var exclusiveSegments []*buffer.MemorySegment

	c.recvMtx.Lock()
	for _, b := range c.receivedBuffers {
		if b.Recycler() == buffer.Recycler(c) {
			exclusiveSegments = append(exclusiveSegments, b.Segment())
		} else {
			b.Recycle()
		}
	}
	c.receivedBuffers = nil
	c.recvMtx.Unlock()

	c.bufMtx.Lock()
	c.bufferQueue.releaseAll(&exclusiveSegments)
	c.bufMtx.Unlock()

	var firstErr error
	if len(exclusiveSegments) > 0 {
		if err := c.gate.ReturnExclusiveSegments(exclusiveSegments); err != nil {
			firstErr = errors.Wrap(err, "return exclusive segments")
		}
	}

	if client := c.getClient(); client != nil {
		if err := client.Close(c); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close partition request client")
		}
	} else {
		c.connectionManager.CloseOpenChannelConnections(c.connectionID)
	}
	return firstErr
}

// ------------------------------------------------------------------------
// Reincarnation after upstream recovery
// ------------------------------------------------------------------------

// ToNewRemoteInputChannel waits until every already-received buffer has been
// consumed, releases this channel, and constructs its successor towards the
// recovered producer. In credit-based mode the gate assigns fresh exclusive
// segments to the successor.
func (c *RemoteInputChannel) ToNewRemoteInputChannel(
	newPartitionID PartitionID,
	newProducerAddress ConnectionID,
	connectionManager ConnectionManager,
	initialBackoff, maxBackoff time.Duration,
) (*RemoteInputChannel, error) {
	c.log.Info("transforming remote input channel")

	// All delivered data must be processed before teardown; deduplication
	// bookkeeping assumes nothing delivered is lost.
	for {
		c.recvMtx.Lock()
		queued := len(c.receivedBuffers)
		c.recvMtx.Unlock()
		if queued == 0 {
			break
		}
		c.log.WithField("queued", queued).Info("waiting for queued buffers to be consumed")
		time.Sleep(100 * time.Millisecond)
	}

	if err := c.ReleaseAllResources(); err != nil {
		return nil, err
	}

	newChannel := NewRemoteInputChannel(c.gate, c.index, newPartitionID,
		newProducerAddress, connectionManager, initialBackoff, maxBackoff, c.log)
	if c.gate.IsCreditBased() {
		if err := c.gate.AssignExclusiveSegments(newChannel); err != nil {
			return nil, errors.Wrap(err, "assign exclusive segments to successor channel")
		}
	}
	return newChannel, nil
}

// ToNewLocalInputChannel releases this channel and constructs a local
// successor for a producer that moved into this process.
func (c *RemoteInputChannel) ToNewLocalInputChannel(
	newPartitionID PartitionID,
	partitionManager ResultPartitionManager,
	taskEventDispatcher TaskEventDispatcher,
	initialBackoff, maxBackoff time.Duration,
) (*LocalInputChannel, error) {
	if err := c.ReleaseAllResources(); err != nil {
		return nil, err
	}
	return NewLocalInputChannel(c.gate, c.index, newPartitionID,
		partitionManager, taskEventDispatcher, initialBackoff, maxBackoff, c.log), nil
}

// ------------------------------------------------------------------------
// Observable counters
// ------------------------------------------------------------------------

func (c *RemoteInputChannel) InputChannelID() InputChannelID { return c.id }

func (c *RemoteInputChannel) ConnectionID() ConnectionID { return c.connectionID }

func (c *RemoteInputChannel) InitialCredit() int { return c.initialCredit }

// UnannouncedCredit returns the credit not yet announced to the producer.
func (c *RemoteInputChannel) UnannouncedCredit() int {
	return int(c.unannouncedCredit.Load())
}

// GetAndResetUnannouncedCredit atomically reads and clears the unannounced
// credit. Called by the client when it writes the announcement out.
func (c *RemoteInputChannel) GetAndResetUnannouncedCredit() int {
	return int(c.unannouncedCredit.Swap(0))
}

func (c *RemoteInputChannel) NumQueuedBuffers() int {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	return len(c.receivedBuffers)
}

// UnsynchronizedNumQueuedBuffers reads the queue length without locking.
// Reporting only.
func (c *RemoteInputChannel) UnsynchronizedNumQueuedBuffers() int {
	n := len(c.receivedBuffers)
	if n < 0 {
		return 0
	}
	return n
}

func (c *RemoteInputChannel) NumAvailableBuffers() int {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	return c.bufferQueue.availableSize()
}

func (c *RemoteInputChannel) NumRequiredBuffers() int {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	return c.numRequiredBuffers
}

func (c *RemoteInputChannel) SenderBacklog() int {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	return c.numRequiredBuffers - c.initialCredit
}

func (c *RemoteInputChannel) IsWaitingForFloatingBuffers() bool {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()
	return c.isWaitingForFloatingBuffers
}

// ------------------------------------------------------------------------
// In-flight replay counters (used by the causal logger)
// ------------------------------------------------------------------------

// GetAndResetNumBuffersRemoved reports how many buffers were delivered to
// the task since the last call, as a truncation hint for the upstream
// in-flight log.
func (c *RemoteInputChannel) GetAndResetNumBuffersRemoved() int {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	n := c.numBuffersRemoved
	c.numBuffersRemoved = 0
	return n
}

func (c *RemoteInputChannel) ResetNumBuffersDeduplicate() {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	c.numBuffersDeduplicate = 0
}

func (c *RemoteInputChannel) NumBuffersDeduplicate() int {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	return c.numBuffersDeduplicate
}

func (c *RemoteInputChannel) SetNumBuffersDeduplicate(n int) {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	c.numBuffersDeduplicate = n
}

// SetDeduplicating puts the channel into the deduplication window: the next
// NumBuffersDeduplicate drained buffers are discarded as replay matches.
func (c *RemoteInputChannel) SetDeduplicating() {
	c.recvMtx.Lock()
	defer c.recvMtx.Unlock()
	c.deduplicating = true
}
