// Single-channel throughput / latency benchmark: an in-process producer
// feeds a RemoteInputChannel through the same callbacks the network layer
// would use, and the main goroutine drains it like a task.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/profile"

	"github.com/flowd-io/flowd/logger"
	"github.com/flowd-io/flowd/network/buffer"
	"github.com/flowd-io/flowd/network/consumer"
)

func orDie(err error) {
	if err != nil {
		panic(err)
	}
}

var args struct {
	exclusiveBuffers int
	floatingBuffers  int
	segmentSize      int
	count            int
	profile          bool
}

type benchGate struct {
	pool *buffer.FixedPool
}

func (g *benchGate) BufferPool() buffer.BufferProvider     { return g.pool }
func (g *benchGate) BufferProvider() buffer.BufferProvider { return g.pool }

func (g *benchGate) ReturnExclusiveSegments(segs []*buffer.MemorySegment) error { return nil }

func (g *benchGate) NotifyChannelNonEmpty(ch consumer.InputChannel) {}

func (g *benchGate) TriggerPartitionStateCheck(pid consumer.PartitionID) {}

func (g *benchGate) TriggerFailProducer(pid consumer.PartitionID, cause error) {}

func (g *benchGate) AssignExclusiveSegments(ch consumer.InputChannel) error { return nil }

func (g *benchGate) IsCreditBased() bool { return true }

// benchClient plays the producer side: announcements immediately drain the
// channel's unannounced credit, like a written-out credit frame would.
type benchClient struct{}

func (benchClient) RequestSubpartition(pid consumer.PartitionID, subpartitionIndex int, ch *consumer.RemoteInputChannel, delay time.Duration) error {
	return nil
}

func (benchClient) SendTaskEvent(pid consumer.PartitionID, event consumer.TaskEvent, ch *consumer.RemoteInputChannel) error {
	return nil
}

func (benchClient) NotifyCreditAvailable(ch *consumer.RemoteInputChannel) error {
	ch.GetAndResetUnannouncedCredit()
	return nil
}

func (benchClient) Close(ch *consumer.RemoteInputChannel) error { return nil }

type benchConnectionManager struct{}

func (benchConnectionManager) CreatePartitionRequestClient(cid consumer.ConnectionID) (consumer.PartitionRequestClient, error) {
	return benchClient{}, nil
}

func (benchConnectionManager) CloseOpenChannelConnections(cid consumer.ConnectionID) {}

func main() {
	flag.IntVar(&args.exclusiveBuffers, "exclusive", 2, "exclusive buffers assigned to the channel")
	flag.IntVar(&args.floatingBuffers, "floating", 8, "floating buffers in the gate pool")
	flag.IntVar(&args.segmentSize, "segsize", 1<<15, "memory segment size in bytes")
	flag.IntVar(&args.count, "count", 1<<20, "number of buffers to deliver")
	flag.BoolVar(&args.profile, "profile", false, "write a CPU profile")
	flag.Parse()

	if args.profile {
		defer profile.Start(profile.CPUProfile).Stop()
	}

	outlets := logger.NewOutlets()
	outlets.Add(logger.NewLogfmtOutlet(os.Stderr), logger.Info)
	log := logger.NewLogger(outlets)

	gate := &benchGate{pool: buffer.NewFixedPool(args.floatingBuffers, args.segmentSize)}
	ch := consumer.NewRemoteInputChannel(gate, 0, consumer.NewPartitionID(),
		consumer.ConnectionID{Address: "bench:0"}, benchConnectionManager{}, 0, 0, log)

	segs := make([]*buffer.MemorySegment, args.exclusiveBuffers)
	for i := range segs {
		segs[i] = buffer.NewMemorySegment(args.segmentSize)
	}
	orDie(ch.AssignExclusiveSegments(segs))
	orDie(ch.RequestSubpartition(0))

	go produce(ch)

	latenciesNs := make([]float64, 0, args.count)
	start := time.Now()
	received := 0
	for received < args.count {
		res, err := ch.GetNextBuffer()
		orDie(err)
		if res == nil {
			continue
		}
		sentNs := binary.BigEndian.Uint64(res.Buffer.Bytes()[:8])
		latenciesNs = append(latenciesNs, float64(uint64(time.Now().UnixNano())-sentNs))
		res.Buffer.Recycle()
		received++
	}
	elapsed := time.Since(start)

	report(log, elapsed, latenciesNs)
}

func produce(ch *consumer.RemoteInputChannel) {
	for seq := uint64(0); seq < uint64(args.count); {
		b := ch.RequestBuffer()
		if b == nil {
			// no credit, the consumer has to recycle first
			continue
		}
		binary.BigEndian.PutUint64(b.Segment().Bytes()[:8], uint64(time.Now().UnixNano()))
		b.SetSize(args.segmentSize)
		ch.OnBuffer(b, seq, 0)
		seq++
	}
}

func report(log logger.Logger, elapsed time.Duration, latenciesNs []float64) {
	p50, err := stats.Percentile(latenciesNs, 50)
	orDie(err)
	p95, err := stats.Percentile(latenciesNs, 95)
	orDie(err)
	p99, err := stats.Percentile(latenciesNs, 99)
	orDie(err)

	log.WithField("buffers", args.count).
		WithField("elapsed", elapsed.String()).
		WithField("buffers_per_sec", fmt.Sprintf("%.0f", float64(args.count)/elapsed.Seconds())).
		WithField("latency_p50", time.Duration(p50).String()).
		WithField("latency_p95", time.Duration(p95).String()).
		WithField("latency_p99", time.Duration(p99).String()).
		Info("benchmark complete")
}
