package playout

import (
	"sync"

	"pipelined.dev/playout/metric"
)

// Reservoir is a bounded FIFO at a push boundary. Capacity is counted in
// bytes of encoded audio or in jiffies of decoded audio, plus a limit on
// the number of queued streams.
type Reservoir struct {
	name       string
	capacity   uint64
	maxStreams int
	gauges     metric.Gauges

	m        sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	q        sizedQueue
	blocked  bool
}

// NewEncodedReservoir creates a reservoir for encoded audio.
func NewEncodedReservoir(bytes int, maxStreams int) *Reservoir {
	return newReservoir("encoded", uint64(bytes), maxStreams, bytesSize)
}

// NewDecodedReservoir creates a reservoir for decoded audio.
func NewDecodedReservoir(jiffies uint64, maxStreams int) *Reservoir {
	return newReservoir("decoded", jiffies, maxStreams, jiffiesSize)
}

func newReservoir(name string, capacity uint64, maxStreams int, size sizer) *Reservoir {
	r := &Reservoir{
		name:       name,
		capacity:   capacity,
		maxStreams: maxStreams,
		gauges:     metric.Reservoir(name),
		q:          sizedQueue{size: size},
	}
	r.notEmpty = sync.NewCond(&r.m)
	r.notFull = sync.NewCond(&r.m)
	return r
}

func (r *Reservoir) full() bool {
	return r.q.total >= r.capacity || r.q.streams >= r.maxStreams
}

// Push enqueues m. It blocks while the reservoir is full. Fullness is
// checked before m is added, so a single message larger than capacity is
// still admitted.
func (r *Reservoir) Push(m Msg) {
	r.m.Lock()
	defer r.m.Unlock()
	for r.full() {
		r.notFull.Wait()
	}
	r.q.Enqueue(m)
	r.gauges.Set(r.q.total, r.q.streams)
	r.notEmpty.Signal()
}

// Pull dequeues the oldest message. It blocks while the reservoir is empty
// or blocked.
func (r *Reservoir) Pull() Msg {
	r.m.Lock()
	defer r.m.Unlock()
	for r.blocked || r.q.Empty() {
		r.notEmpty.Wait()
	}
	m := r.q.Dequeue()
	r.gauges.Set(r.q.total, r.q.streams)
	r.notFull.Broadcast()
	return m
}

// Block stops Pull from returning messages until Unblock.
func (r *Reservoir) Block() {
	r.m.Lock()
	defer r.m.Unlock()
	r.blocked = true
}

// Unblock resumes Pull.
func (r *Reservoir) Unblock() {
	r.m.Lock()
	defer r.m.Unlock()
	r.blocked = false
	r.notEmpty.Broadcast()
}

// Purge releases queued messages for which keep returns false and returns
// how many were dropped.
func (r *Reservoir) Purge(keep func(Msg) bool) int {
	r.m.Lock()
	defer r.m.Unlock()
	n := r.q.filter(keep)
	r.gauges.Set(r.q.total, r.q.streams)
	r.notFull.Broadcast()
	return n
}

// Size returns current occupancy.
func (r *Reservoir) Size() uint64 {
	r.m.Lock()
	defer r.m.Unlock()
	return r.q.total
}

// Streams returns number of queued streams.
func (r *Reservoir) Streams() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.q.streams
}

// Len returns number of queued messages.
func (r *Reservoir) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.q.Len()
}

// Capacity returns configured capacity.
func (r *Reservoir) Capacity() uint64 {
	return r.capacity
}

// PushWouldBlock reports if Push would block now.
func (r *Reservoir) PushWouldBlock() bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.full()
}

// PullWouldBlock reports if Pull would block now.
func (r *Reservoir) PullWouldBlock() bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.blocked || r.q.Empty()
}

// keepControl is a Purge filter keeping everything but audio and metatext.
func keepControl(m Msg) bool {
	switch m.(type) {
	case *MsgAudioEncoded, *MsgAudioPcm, *MsgSilence, *MsgMetaText:
		return false
	}
	return true
}
