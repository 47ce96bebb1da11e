package playout

// msgQueue is a FIFO linked through msgBase.next, so queueing never
// allocates. It's not safe for concurrent use.
type msgQueue struct {
	head, tail Msg
	n          int
}

func (q *msgQueue) Enqueue(m Msg) {
	b := m.base()
	invariant(b.next == nil && q.tail != m, "message enqueued twice")
	if q.tail == nil {
		q.head = m
	} else {
		q.tail.base().next = m
	}
	q.tail = m
	q.n++
}

// EnqueueAtHead puts m in front of all queued messages, used to requeue
// the remainder of a split message.
func (q *msgQueue) EnqueueAtHead(m Msg) {
	b := m.base()
	invariant(b.next == nil && q.head != m, "message enqueued twice")
	b.next = q.head
	q.head = m
	if q.tail == nil {
		q.tail = m
	}
	q.n++
}

func (q *msgQueue) Dequeue() Msg {
	m := q.head
	if m == nil {
		return nil
	}
	b := m.base()
	q.head = b.next
	b.next = nil
	if q.head == nil {
		q.tail = nil
	}
	q.n--
	return m
}

func (q *msgQueue) Empty() bool {
	return q.head == nil
}

func (q *msgQueue) Len() int {
	return q.n
}

// Clear releases all queued messages.
func (q *msgQueue) Clear() {
	for m := q.Dequeue(); m != nil; m = q.Dequeue() {
		m.RemoveRef()
	}
}

// sizer returns the size of a message for occupancy accounting.
type sizer func(Msg) uint64

func jiffiesSize(m Msg) uint64 {
	if a, ok := m.(MsgAudio); ok {
		return a.Jiffies()
	}
	return 0
}

func bytesSize(m Msg) uint64 {
	if a, ok := m.(*MsgAudioEncoded); ok {
		return uint64(len(a.Bytes()))
	}
	return 0
}

func isStream(m Msg) bool {
	switch m.(type) {
	case *MsgEncodedStream, *MsgDecodedStream:
		return true
	}
	return false
}

// sizedQueue tracks occupancy and number of streams of a msgQueue.
type sizedQueue struct {
	msgQueue
	size    sizer
	total   uint64
	streams int
}

func (q *sizedQueue) Enqueue(m Msg) {
	q.msgQueue.Enqueue(m)
	q.in(m)
}

func (q *sizedQueue) EnqueueAtHead(m Msg) {
	q.msgQueue.EnqueueAtHead(m)
	q.in(m)
}

func (q *sizedQueue) Dequeue() Msg {
	m := q.msgQueue.Dequeue()
	if m != nil {
		q.out(m)
	}
	return m
}

func (q *sizedQueue) in(m Msg) {
	q.total += q.size(m)
	if isStream(m) {
		q.streams++
	}
}

func (q *sizedQueue) out(m Msg) {
	s := q.size(m)
	invariant(s <= q.total, "queue occupancy underflow")
	q.total -= s
	if isStream(m) {
		q.streams--
	}
}

// Clear releases all queued messages.
func (q *sizedQueue) Clear() {
	for m := q.Dequeue(); m != nil; m = q.Dequeue() {
		m.RemoveRef()
	}
}

// filter rebuilds the queue keeping messages for which keep is true.
// Dropped messages are released.
func (q *sizedQueue) filter(keep func(Msg) bool) int {
	var kept msgQueue
	dropped := 0
	for m := q.Dequeue(); m != nil; m = q.Dequeue() {
		if keep(m) {
			kept.Enqueue(m)
			continue
		}
		m.RemoveRef()
		dropped++
	}
	for m := kept.Dequeue(); m != nil; m = kept.Dequeue() {
		q.Enqueue(m)
	}
	return dropped
}
