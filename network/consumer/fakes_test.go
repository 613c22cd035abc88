package consumer

import (
	"sync"
	"time"

	"github.com/flowd-io/flowd/network/buffer"
)

// countingRecycler stands in for a foreign recycler (e.g. another channel or
// a pool on the sending side).
type countingRecycler struct {
	mtx      sync.Mutex
	recycled int
}

func (r *countingRecycler) Recycle(seg *buffer.MemorySegment) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.recycled++
}

func (r *countingRecycler) numRecycled() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.recycled
}

type fakeGate struct {
	pool        *buffer.FixedPool
	creditBased bool
	exclusive   int // segments per channel for AssignExclusiveSegments
	segmentSize int

	mtx              sync.Mutex
	returnedSegments []*buffer.MemorySegment
	returnBatches    int
	nonEmpty         int
	stateChecks      []PartitionID
	producerFailures []error
}

func newFakeGate(poolBuffers, segmentSize int) *fakeGate {
	return &fakeGate{
		pool:        buffer.NewFixedPool(poolBuffers, segmentSize),
		segmentSize: segmentSize,
	}
}

func (g *fakeGate) BufferPool() buffer.BufferProvider     { return g.pool }
func (g *fakeGate) BufferProvider() buffer.BufferProvider { return g.pool }

func (g *fakeGate) ReturnExclusiveSegments(segs []*buffer.MemorySegment) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.returnedSegments = append(g.returnedSegments, segs...)
	g.returnBatches++
	return nil
}

func (g *fakeGate) NotifyChannelNonEmpty(ch InputChannel) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.nonEmpty++
}

func (g *fakeGate) TriggerPartitionStateCheck(pid PartitionID) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.stateChecks = append(g.stateChecks, pid)
}

func (g *fakeGate) TriggerFailProducer(pid PartitionID, cause error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.producerFailures = append(g.producerFailures, cause)
}

func (g *fakeGate) AssignExclusiveSegments(ch InputChannel) error {
	rc := ch.(*RemoteInputChannel)
	segs := make([]*buffer.MemorySegment, g.exclusive)
	for i := range segs {
		segs[i] = buffer.NewMemorySegment(g.segmentSize)
	}
	return rc.AssignExclusiveSegments(segs)
}

func (g *fakeGate) IsCreditBased() bool { return g.creditBased }

func (g *fakeGate) numReturnedSegments() int {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return len(g.returnedSegments)
}

func (g *fakeGate) numNonEmptyNotifications() int {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.nonEmpty
}

type subpartitionRequest struct {
	pid   PartitionID
	index int
	delay time.Duration
}

type fakeClient struct {
	mtx                 sync.Mutex
	requests            []subpartitionRequest
	events              []TaskEvent
	creditNotifications int
	closed              int
}

func (c *fakeClient) RequestSubpartition(pid PartitionID, subpartitionIndex int, ch *RemoteInputChannel, delay time.Duration) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.requests = append(c.requests, subpartitionRequest{pid, subpartitionIndex, delay})
	return nil
}

func (c *fakeClient) SendTaskEvent(pid PartitionID, event TaskEvent, ch *RemoteInputChannel) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeClient) NotifyCreditAvailable(ch *RemoteInputChannel) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.creditNotifications++
	return nil
}

func (c *fakeClient) Close(ch *RemoteInputChannel) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.closed++
	return nil
}

func (c *fakeClient) numCreditNotifications() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.creditNotifications
}

func (c *fakeClient) numRequests() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.requests)
}

type fakeConnectionManager struct {
	mtx           sync.Mutex
	client        *fakeClient
	created       int
	closedOrphans int
}

func (m *fakeConnectionManager) CreatePartitionRequestClient(cid ConnectionID) (PartitionRequestClient, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.created++
	if m.client == nil {
		m.client = &fakeClient{}
	}
	return m.client, nil
}

func (m *fakeConnectionManager) CloseOpenChannelConnections(cid ConnectionID) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.closedOrphans++
}

func (m *fakeConnectionManager) numCreated() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.created
}

const testSegmentSize = 1024

// newTestChannel wires a channel to fresh fakes.
func newTestChannel(gate *fakeGate) (*RemoteInputChannel, *fakeConnectionManager) {
	mgr := &fakeConnectionManager{client: &fakeClient{}}
	ch := NewRemoteInputChannel(gate, 0, NewPartitionID(),
		ConnectionID{Address: "producer-1:31337"}, mgr, 0, 0, nil)
	return ch, mgr
}

func assignExclusive(ch *RemoteInputChannel, n int) []*buffer.MemorySegment {
	segs := make([]*buffer.MemorySegment, n)
	for i := range segs {
		segs[i] = buffer.NewMemorySegment(testSegmentSize)
	}
	if err := ch.AssignExclusiveSegments(segs); err != nil {
		panic(err)
	}
	return segs
}

// newRemoteBuffer fakes a buffer that arrived over the wire and is owned by
// a foreign recycler.
func newRemoteBuffer(r buffer.Recycler) *buffer.Buffer {
	return buffer.New(buffer.NewMemorySegment(testSegmentSize), r)
}
