// Package inflight keeps the producer-side log of recently emitted buffers.
//
// Buffers are retained into epoch slices delimited by checkpoint barriers.
// Completed checkpoints truncate strictly older epochs. After a downstream
// failure, the suffix of the log starting at the failed consumer's last
// completed checkpoint is replayed; the consumer deduplicates buffers it
// already processed and reports delivered counts back as truncation hints.
package inflight

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/flowd-io/flowd/network/buffer"
)

// Log is the in-flight log of one subpartition.
type Log interface {
	// Log retains and appends a buffer to the current epoch.
	Log(b *buffer.Buffer)

	// LogCheckpointBarrier retains and appends the barrier buffer, then
	// opens a new epoch keyed by checkpointID.
	LogCheckpointBarrier(b *buffer.Buffer, checkpointID uint64)

	// NotifyCheckpointComplete recycles and drops every epoch strictly
	// older than checkpointID.
	NotifyCheckpointComplete(checkpointID uint64) error

	// FromCheckpoint returns an iterator over the retained suffix of the
	// log starting at checkpointID. The buffers are retained once more for
	// the replay; the network stack recycles them as it sends.
	FromCheckpoint(checkpointID uint64) (*ReplayIterator, error)

	// Truncate recycles and drops the oldest n buffers. Fed by the
	// consumer's delivered-buffer count.
	Truncate(n int)

	// Clear recycles everything and resets the log to a single empty epoch.
	Clear()
}

// SubpartitionLog is the epoch-sliced Log implementation.
type SubpartitionLog struct {
	mtx    sync.Mutex
	epochs map[uint64][]*buffer.Buffer
	order  []uint64 // epoch keys, ascending
}

var _ Log = (*SubpartitionLog)(nil)

func NewSubpartitionLog() *SubpartitionLog {
	l := &SubpartitionLog{}
	l.reset()
	return l
}

// caller holds mtx (or has exclusive access)
func (l *SubpartitionLog) reset() {
	l.epochs = map[uint64][]*buffer.Buffer{0: nil}
	l.order = []uint64{0}
}

func (l *SubpartitionLog) currentEpoch() uint64 {
	return l.order[len(l.order)-1]
}

func (l *SubpartitionLog) Log(b *buffer.Buffer) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	cur := l.currentEpoch()
	l.epochs[cur] = append(l.epochs[cur], b.Retain())
}

func (l *SubpartitionLog) LogCheckpointBarrier(b *buffer.Buffer, checkpointID uint64) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	cur := l.currentEpoch()
	l.epochs[cur] = append(l.epochs[cur], b.Retain())
	if _, ok := l.epochs[checkpointID]; !ok {
		l.epochs[checkpointID] = nil
		l.order = append(l.order, checkpointID)
		sort.Slice(l.order, func(i, j int) bool { return l.order[i] < l.order[j] })
	}
}

func (l *SubpartitionLog) NotifyCheckpointComplete(checkpointID uint64) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if _, ok := l.epochs[checkpointID]; !ok && checkpointID != 0 {
		return errors.Errorf("inflight: unknown checkpoint %d", checkpointID)
	}
	keep := l.order[:0:0]
	for _, epoch := range l.order {
		if epoch < checkpointID {
			for _, b := range l.epochs[epoch] {
				b.Recycle()
			}
			delete(l.epochs, epoch)
			continue
		}
		keep = append(keep, epoch)
	}
	l.order = keep
	return nil
}

func (l *SubpartitionLog) FromCheckpoint(checkpointID uint64) (*ReplayIterator, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if _, ok := l.epochs[checkpointID]; !ok {
		return nil, errors.Errorf("inflight: no epoch for checkpoint %d", checkpointID)
	}
	var replay []*buffer.Buffer
	for _, epoch := range l.order {
		if epoch < checkpointID {
			continue
		}
		for _, b := range l.epochs[epoch] {
			replay = append(replay, b.Retain())
		}
	}
	return &ReplayIterator{buffers: replay}, nil
}

func (l *SubpartitionLog) Truncate(n int) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for _, epoch := range l.order {
		if n == 0 {
			return
		}
		slice := l.epochs[epoch]
		drop := n
		if drop > len(slice) {
			drop = len(slice)
		}
		for _, b := range slice[:drop] {
			b.Recycle()
		}
		l.epochs[epoch] = slice[drop:]
		n -= drop
	}
}

func (l *SubpartitionLog) Clear() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for _, epoch := range l.order {
		for _, b := range l.epochs[epoch] {
			b.Recycle()
		}
	}
	l.reset()
}

// NumLogged returns the number of buffers currently retained in the log.
func (l *SubpartitionLog) NumLogged() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	n := 0
	for _, epoch := range l.order {
		n += len(l.epochs[epoch])
	}
	return n
}

// ReplayIterator iterates over a retained snapshot of the log suffix.
// The caller owns one reference to every buffer it takes via Next and must
// recycle the rest via Close if it abandons the replay.
type ReplayIterator struct {
	buffers []*buffer.Buffer
	pos     int
}

func (it *ReplayIterator) HasNext() bool {
	return it.pos < len(it.buffers)
}

func (it *ReplayIterator) Next() *buffer.Buffer {
	b := it.buffers[it.pos]
	it.pos++
	return b
}

func (it *ReplayIterator) NumberRemaining() int {
	return len(it.buffers) - it.pos
}

// Close recycles the untaken remainder of the snapshot.
func (it *ReplayIterator) Close() {
	for ; it.pos < len(it.buffers); it.pos++ {
		it.buffers[it.pos].Recycle()
	}
}
